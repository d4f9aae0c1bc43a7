package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-sensor/internal/logic"
)

func openMemory(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(":memory:", keep, "boot-1")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openMemory(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, base, logic.Event{Kind: logic.KindShort, Button: 0}, "key1"))
	require.NoError(t, s.Append(ctx, base.Add(time.Second), logic.Event{Kind: logic.KindLong, Button: 2}, "key3"))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "LONG_PRESS", got[0].Kind, "newest first")
	assert.Equal(t, 2, got[0].Button)
	assert.Equal(t, "key3", got[0].Name)
	assert.Equal(t, "boot-1", got[0].BootID)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Second)))
	assert.Equal(t, "SHORT_PRESS", got[1].Kind)
}

func TestRecentLimit(t *testing.T) {
	s := openMemory(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, time.Now(), logic.Event{Kind: logic.KindShort}, "k"))
	}

	got, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetention(t *testing.T) {
	s := openMemory(t, 3)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Append(ctx, time.Now(), logic.Event{Kind: logic.KindShort, Button: i}, "k"))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 6, got[0].Button)
	assert.Equal(t, 4, got[2].Button)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	s, err := Open(path, 0, "first")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, time.Now(), logic.Event{Kind: logic.KindDouble, Button: 1}, "key2"))
	require.NoError(t, s.Close())

	s, err = Open(path, 0, "second")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].BootID)
	assert.Equal(t, "DOUBLE_PRESS", got[0].Kind)
}
