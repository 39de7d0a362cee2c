package upcall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpcallResolveWakesJoiners(t *testing.T) {
	u := NewUpcall(1000, "integrity")
	done1 := u.Join()
	done2 := u.Join()
	assert.Equal(t, 2, u.Waiters())

	u.Resolve(&Downcall{UID: 1000}, nil)

	<-done1
	<-done2

	d, err := u.Result()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), d.UID)
}

func TestUpcallResolveIsIdempotent(t *testing.T) {
	u := NewUpcall(1000, "integrity")
	u.Resolve(&Downcall{UID: 1000}, nil)
	u.Resolve(nil, errors.New("should be ignored"))

	d, err := u.Result()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), d.UID)
}

func TestUpcallResolveWithError(t *testing.T) {
	u := NewUpcall(1000, "integrity")
	done := u.Join()
	u.Resolve(nil, errors.New("boom"))
	<-done

	d, err := u.Result()
	assert.Nil(t, d)
	assert.EqualError(t, err, "boom")
}
