package proactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPacking(t *testing.T) {
	id := makeID(3, 7, 42)
	require.Equal(t, 3, id.Slot())
	require.Equal(t, uint32(7), id.generation())
	require.Equal(t, uint32(42), id.index())
	// generation从1开始，合法ID不可能是0
	require.NotEqual(t, InvalidID, makeID(0, 1, 0))
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry(2, 16)
	obj, err := r.Register(10, Socket)
	require.NoError(t, err)
	require.Equal(t, 2, obj.id.Slot())
	require.Equal(t, Idle, obj.state)
	require.False(t, obj.alwaysReady)

	got, err := r.Lookup(obj.id)
	require.NoError(t, err)
	require.Same(t, obj, got)

	_, err = r.Lookup(InvalidID)
	require.ErrorIs(t, err, ErrInvalidObject)
	require.Equal(t, 1, r.Len())
}

func TestRegistryFileAlwaysReady(t *testing.T) {
	r := NewRegistry(0, 16)
	obj, err := r.Register(5, File)
	require.NoError(t, err)
	require.True(t, obj.alwaysReady)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(0, 16)
	obj, err := r.Register(10, Socket)
	require.NoError(t, err)

	_, err = r.Unregister(obj.id)
	require.NoError(t, err)
	_, err = r.Lookup(obj.id)
	require.ErrorIs(t, err, ErrInvalidObject)
	_, err = r.Unregister(obj.id)
	require.ErrorIs(t, err, ErrInvalidObject)

	// 下标复用但generation递增，旧ID保持失效
	next, err := r.Register(11, Socket)
	require.NoError(t, err)
	require.Equal(t, obj.id.index(), next.id.index())
	require.NotEqual(t, obj.id, next.id)
	_, err = r.Lookup(obj.id)
	require.ErrorIs(t, err, ErrInvalidObject)
}

func TestRegistryExhausted(t *testing.T) {
	r := NewRegistry(0, 2)
	a, err := r.Register(1, Socket)
	require.NoError(t, err)
	_, err = r.Register(2, Socket)
	require.NoError(t, err)
	_, err = r.Register(3, Socket)
	require.ErrorIs(t, err, ErrExhaustedIdentitySpace)

	_, err = r.Unregister(a.id)
	require.NoError(t, err)
	_, err = r.Register(4, Socket)
	require.NoError(t, err)
}

func TestRegistryGenerationRetire(t *testing.T) {
	r := NewRegistry(0, 16)
	obj, err := r.Register(1, Socket)
	require.NoError(t, err)
	idx := obj.id.index()
	// 把generation顶到上限，注销后下标被废弃
	r.entries[idx].gen = maxGeneration
	obj.id = makeID(0, maxGeneration, idx)
	_, err = r.Unregister(obj.id)
	require.NoError(t, err)
	require.Empty(t, r.free)

	next, err := r.Register(2, Socket)
	require.NoError(t, err)
	require.NotEqual(t, idx, next.id.index())
}

func TestObjectDirectionFlags(t *testing.T) {
	obj := &object{}
	require.True(t, obj.tryAcquire(true))
	require.False(t, obj.tryAcquire(true))
	// 写方向独立于读方向
	require.True(t, obj.tryAcquire(false))
	require.True(t, obj.pendingAny())
	obj.release(true)
	require.True(t, obj.tryAcquire(true))
	obj.release(true)
	obj.release(false)
	require.False(t, obj.pendingAny())
}

func TestObjectTransition(t *testing.T) {
	obj := &object{state: Idle}
	require.False(t, obj.transition(Cancelling))
	require.Equal(t, Idle, obj.state)

	require.True(t, obj.transition(Pending))
	require.True(t, obj.transition(Cancelling))
	require.True(t, obj.transition(Idle))
	require.True(t, obj.transition(Closed))
	// Closed是终态
	require.False(t, obj.transition(Idle))
	require.False(t, obj.transition(Pending))
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(0, 16)
	a, err := r.Register(1, Socket)
	require.NoError(t, err)
	b, err := r.Register(2, Socket)
	require.NoError(t, err)

	_, err = r.Unregister(a.id)
	require.NoError(t, err)
	objs := r.Snapshot()
	require.Len(t, objs, 1)
	require.Same(t, b, objs[0])
}
