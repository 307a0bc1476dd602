//go:build mlsffi_sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "groups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	gid := []byte("group-1")

	got, err := s.State(ctx, gid)
	require.NoError(t, err)
	require.Nil(t, got, "unknown group reads as absent")

	require.NoError(t, s.WriteState(ctx, gid, []byte("snap-v1"), nil, nil))
	require.NoError(t, s.WriteState(ctx, gid, []byte("snap-v2"), nil, nil))

	got, err = s.State(ctx, gid)
	require.NoError(t, err)
	require.Equal(t, []byte("snap-v2"), got)
}

func TestEpochWindow(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	gid := []byte("group-1")

	_, found, err := s.MaxEpochID(ctx, gid)
	require.NoError(t, err)
	require.False(t, found)

	for epoch := uint64(1); epoch <= 5; epoch++ {
		require.NoError(t, s.WriteState(ctx, gid, []byte("snap"),
			[]engine.EpochRecord{{ID: epoch, Data: []byte{byte(epoch)}}}, nil))
	}

	maxID, found, err := s.MaxEpochID(ctx, gid)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(5), maxID)

	// Retention keeps the trailing window only.
	old, err := s.EpochData(ctx, gid, 1)
	require.NoError(t, err)
	require.Nil(t, old)

	recent, err := s.EpochData(ctx, gid, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{5}, recent)
}

func TestEpochUpdate(t *testing.T) {
	s := openTemp(t)
	s.SetEpochRetention(0)
	ctx := context.Background()
	gid := []byte("group-1")

	require.NoError(t, s.WriteState(ctx, gid, []byte("snap"),
		[]engine.EpochRecord{{ID: 7, Data: []byte("old")}}, nil))
	require.NoError(t, s.WriteState(ctx, gid, []byte("snap"),
		nil, []engine.EpochRecord{{ID: 7, Data: []byte("new")}}))

	got, err := s.EpochData(ctx, gid, 7)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestGroupsAreIsolated(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.WriteState(ctx, []byte("a"), []byte("snap-a"),
		[]engine.EpochRecord{{ID: 1, Data: []byte("ea")}}, nil))
	require.NoError(t, s.WriteState(ctx, []byte("b"), []byte("snap-b"),
		[]engine.EpochRecord{{ID: 9, Data: []byte("eb")}}, nil))

	got, err := s.State(ctx, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("snap-a"), got)

	maxID, found, err := s.MaxEpochID(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), maxID)

	other, err := s.EpochData(ctx, []byte("a"), 9)
	require.NoError(t, err)
	require.Nil(t, other)
}
