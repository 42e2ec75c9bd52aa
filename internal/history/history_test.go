package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, store.Append(ctx, Record{
			BuildID:   id,
			Mode:      "incremental",
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
			Rebuilt:   i,
			Unchanged: 10,
			Outcome:   "success",
			Reason:    "subset_changed",
		}))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b3", recent[0].BuildID, "newest first")
	assert.Equal(t, "b2", recent[1].BuildID)
	assert.Equal(t, 1500*time.Millisecond, recent[0].Duration)
}

func TestRecentEmpty(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/history.db"
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), Record{BuildID: "b1", Mode: "full", Outcome: "success"}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b1", recent[0].BuildID)
}
