package authregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	transport uintptr
	parent    Client
}

func (f *fakeClient) TransportID() uintptr { return f.transport }
func (f *fakeClient) Parent() Client       { return f.parent }

func TestLookupOrCreateCreatesOnMiss(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{transport: 1}

	auth := r.LookupOrCreate(c, 390004, "nfs@server")
	require.NotNil(t, auth)
	assert.Equal(t, uint32(390004), auth.Pseudoflavor)
	assert.Equal(t, 1, r.Len())
}

func TestLookupOrCreateReturnsSameEntryOnHit(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{transport: 1}

	first := r.LookupOrCreate(c, 390004, "nfs@server")
	second := r.LookupOrCreate(c, 390004, "nfs@server")

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestLookupOrCreateWalksToRootTransport(t *testing.T) {
	r := NewRegistry()
	root := &fakeClient{transport: 1}
	child := &fakeClient{transport: 1, parent: root}
	grandchild := &fakeClient{transport: 1, parent: child}

	fromRoot := r.LookupOrCreate(root, 390004, "nfs@server")
	fromGrandchild := r.LookupOrCreate(grandchild, 390004, "nfs@server")

	assert.Same(t, fromRoot, fromGrandchild)
}

func TestLookupOrCreateSeparatesDifferentTransports(t *testing.T) {
	r := NewRegistry()
	root := &fakeClient{transport: 1}
	other := &fakeClient{transport: 2, parent: root} // parent transport differs => other is its own root

	a := r.LookupOrCreate(root, 390004, "nfs@server")
	b := r.LookupOrCreate(other, 390004, "nfs@server")

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestLookupOrCreateDistinguishesPseudoflavorAndTarget(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{transport: 1}

	a := r.LookupOrCreate(c, 390004, "nfs@a")
	b := r.LookupOrCreate(c, 390005, "nfs@a")
	d := r.LookupOrCreate(c, 390004, "nfs@b")

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, d)
	assert.Equal(t, 3, r.Len())
}

func TestReleasedAuthIsNotReusedAfterDestroy(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{transport: 1}

	first := r.LookupOrCreate(c, 390004, "nfs@server")
	first.Release() // refcount 1 -> 0, marks destroyed

	second := r.LookupOrCreate(c, 390004, "nfs@server")
	assert.NotSame(t, first, second, "a destroyed entry must be replaced, not reused")
}

func TestTryAcquireFailsOnDestroyedAuth(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{transport: 1}

	auth := r.LookupOrCreate(c, 390004, "nfs@server")
	auth.Release()

	assert.False(t, auth.tryAcquire())
}
