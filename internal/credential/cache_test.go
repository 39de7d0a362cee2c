package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gssauth/internal/wireauth"
)

func TestLookupOrCreateCreatesOnMiss(t *testing.T) {
	c := NewCache()
	cred := c.LookupOrCreate(1000, "", uint32(wireauth.ServiceIntegrity))
	require.NotNil(t, cred)
	assert.Equal(t, uint32(1000), cred.UID)
	assert.Equal(t, 1, c.Len())
}

func TestLookupOrCreateReturnsSameEntryOnHit(t *testing.T) {
	c := NewCache()
	first := c.LookupOrCreate(1000, "", uint32(wireauth.ServiceIntegrity))
	second := c.LookupOrCreate(1000, "", uint32(wireauth.ServiceIntegrity))

	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())
}

func TestLookupOrCreateDistinguishesPrincipal(t *testing.T) {
	c := NewCache()
	a := c.LookupOrCreate(1000, "nfs@a", uint32(wireauth.ServiceIntegrity))
	b := c.LookupOrCreate(1000, "nfs@b", uint32(wireauth.ServiceIntegrity))

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())
}

func TestEvictOldestSkipsReferencedEntries(t *testing.T) {
	c := NewCache()
	held := c.LookupOrCreate(1000, "", uint32(wireauth.ServiceIntegrity))
	held.Acquire() // second reference: refcount 2, never reaches zero in this test

	idle := c.LookupOrCreate(2000, "", uint32(wireauth.ServiceIntegrity))
	idle.Release() // drop LookupOrCreate's own reference: refcount 0

	evicted := c.EvictOldest(0)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, c.Len())
}

func TestEvictOldestRespectsKeepCount(t *testing.T) {
	c := NewCache()
	for uid := uint32(1000); uid < 1005; uid++ {
		cred := c.LookupOrCreate(uid, "", uint32(wireauth.ServiceIntegrity))
		cred.Release()
	}

	evicted := c.EvictOldest(2)
	assert.Equal(t, 3, evicted)
	assert.Equal(t, 2, c.Len())
}
