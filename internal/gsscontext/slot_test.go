package gsscontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotAcquireOnEmptySlotFails(t *testing.T) {
	s := NewContextSlot()
	_, _, ok := s.Acquire()
	assert.False(t, ok)
}

func TestSlotStoreThenAcquire(t *testing.T) {
	s := NewContextSlot()
	ctx := New(&fakeMechanism{}, &fakeSecContext{}, nil, 1)
	s.Store(ctx)

	got, release, ok := s.Acquire()
	require.True(t, ok)
	assert.Same(t, ctx, got)
	release()
}

func TestSlotStoreDestroysOldContextOnceDrained(t *testing.T) {
	s := NewContextSlot()
	oldSec := &fakeSecContext{}
	oldCtx := New(&fakeMechanism{}, oldSec, nil, 1)
	s.Store(oldCtx)

	_, release, ok := s.Acquire()
	require.True(t, ok)

	newCtx := New(&fakeMechanism{}, &fakeSecContext{}, nil, 1)
	s.Store(newCtx)

	assert.False(t, oldSec.destroyed, "must not destroy while a reader still holds it")

	release()
	assert.True(t, oldSec.destroyed, "must destroy once the last reader releases")
}

func TestSlotStoreDestroysImmediatelyWhenNoReaders(t *testing.T) {
	s := NewContextSlot()
	oldSec := &fakeSecContext{}
	s.Store(New(&fakeMechanism{}, oldSec, nil, 1))

	s.Store(New(&fakeMechanism{}, &fakeSecContext{}, nil, 1))

	assert.True(t, oldSec.destroyed)
}

func TestSlotCurrentReflectsLatestStore(t *testing.T) {
	s := NewContextSlot()
	assert.Nil(t, s.Current())

	ctx := New(&fakeMechanism{}, &fakeSecContext{}, nil, 1)
	s.Store(ctx)
	assert.Same(t, ctx, s.Current())
}
