package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// put replaces the stored state for id.
func put(ctx context.Context, store Store, id string, state *models.SessionState) error {
	_, err := store.Update(ctx, id, func(current *models.SessionState) error {
		*current = *state.Clone()
		return nil
	})
	return err
}

func newTestMemoryStore(ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(ttl, zap.NewNop())
	store.now = clock.Now
	return store, clock
}

func TestMemoryStore_UnknownSessionLoadsFresh(t *testing.T) {
	store, _ := newTestMemoryStore(time.Hour)

	state, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)

	for _, kind := range models.AllDatasetKinds() {
		assert.False(t, state.UploadStatus[kind], "kind %s", kind)
		assert.Equal(t, models.PhaseEmpty, state.Phase(kind))
	}
}

func TestMemoryStore_UpdateAndLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour)

	state := models.NewSessionState()
	state.UploadStatus[models.DatasetEntities] = true
	ds := state.Dataset(models.DatasetOwnership)
	ds.Phase = models.PhaseStaged
	ds.Columns = []string{"Parent", "Child"}
	require.NoError(t, put(ctx, store, "s1", state))

	// Mutating the caller's copy must not leak into the store.
	ds.Columns[0] = "changed"

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, loaded.UploadStatus[models.DatasetEntities])
	assert.Equal(t, models.PhaseStaged, loaded.Phase(models.DatasetOwnership))
	assert.Equal(t, []string{"Parent", "Child"}, loaded.Datasets[models.DatasetOwnership].Columns)
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Hour)

	state := models.NewSessionState()
	state.UploadStatus[models.DatasetPersons] = true
	require.NoError(t, put(ctx, store, "s1", state))

	clock.Advance(59 * time.Minute)
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, loaded.UploadStatus[models.DatasetPersons])

	clock.Advance(2 * time.Minute)
	loaded, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, loaded.UploadStatus[models.DatasetPersons], "expired session loads fresh")
	assert.Equal(t, 0, store.size())
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Hour)

	require.NoError(t, put(ctx, store, "old", models.NewSessionState()))
	clock.Advance(50 * time.Minute)
	require.NoError(t, put(ctx, store, "recent", models.NewSessionState()))
	clock.Advance(20 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.size())

	removed, err = store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestMemoryStore_UpdateKeepsOtherKinds(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour)

	var wg sync.WaitGroup
	for _, kind := range models.AllDatasetKinds() {
		wg.Add(1)
		go func(kind models.DatasetKind) {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(state *models.SessionState) error {
				state.UploadStatus[kind] = true
				state.Dataset(kind).Phase = models.PhaseCommitted
				return nil
			})
			assert.NoError(t, err)
		}(kind)
	}
	wg.Wait()

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	for _, kind := range models.AllDatasetKinds() {
		assert.True(t, loaded.UploadStatus[kind], "kind %s", kind)
		assert.Equal(t, models.PhaseCommitted, loaded.Phase(kind), "kind %s", kind)
	}
}

func TestMemoryStore_UpdateErrorStoresNothing(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour)

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(state *models.SessionState) error {
		state.UploadStatus[models.DatasetEntities] = true
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.size())

	updated, err := store.Update(ctx, "s1", func(state *models.SessionState) error {
		state.UploadStatus[models.DatasetPersons] = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, updated.UploadStatus[models.DatasetEntities])
	assert.True(t, updated.UploadStatus[models.DatasetPersons])

	// The returned state is a copy.
	updated.UploadStatus[models.DatasetOwnership] = true
	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, loaded.UploadStatus[models.DatasetOwnership])
}
