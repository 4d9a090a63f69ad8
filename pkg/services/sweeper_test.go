package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/metrics"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/staging"
)

func ageStagedFile(t *testing.T, dir, handle string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(dir, handle+".json"), old, old))
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stagingStore, err := staging.NewDiskStore(dir, zap.NewNop())
	require.NoError(t, err)
	sessionStore := sessions.NewMemoryStore(time.Hour, zap.NewNop())
	m := metrics.New()

	ds := &models.ParsedDataset{Columns: []string{"a"}}
	stale, err := stagingStore.Put(ctx, "s1", models.DatasetEntities, ds)
	require.NoError(t, err)
	fresh, err := stagingStore.Put(ctx, "s2", models.DatasetEntities, ds)
	require.NoError(t, err)
	ageStagedFile(t, dir, stale, 10*time.Minute)

	sw := NewSweeper(stagingStore, sessionStore, 6*time.Minute, m, zap.NewNop())
	result, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StagedDatasets)
	assert.Equal(t, 0, result.Sessions)

	_, err = stagingStore.Get(ctx, stale)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = stagingStore.Get(ctx, fresh)
	assert.NoError(t, err)

	assert.Contains(t, scrape(t, m), "orgchart_staging_swept_total 1")
}

func TestSweeper_RunSchedulerSweepsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	stagingStore, err := staging.NewDiskStore(dir, zap.NewNop())
	require.NoError(t, err)

	handle, err := stagingStore.Put(context.Background(), "s1", models.DatasetPersons, &models.ParsedDataset{})
	require.NoError(t, err)
	ageStagedFile(t, dir, handle, time.Hour)

	sw := NewSweeper(stagingStore, sessions.NewMemoryStore(time.Hour, zap.NewNop()), time.Minute, nil, zap.NewNop())
	sw.RunScheduler(ctx, time.Hour)

	assert.Eventually(t, func() bool {
		_, err := stagingStore.Get(context.Background(), handle)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond, "first sweep runs without waiting for the ticker")

	cancel()
}

func TestSweeper_StagingOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stagingStore, err := staging.NewDiskStore(dir, zap.NewNop())
	require.NoError(t, err)
	m := metrics.New()

	handle, err := stagingStore.Put(ctx, "s1", models.DatasetOwnership, &models.ParsedDataset{Columns: []string{"a"}})
	require.NoError(t, err)
	ageStagedFile(t, dir, handle, time.Hour)

	sw := NewSweeper(stagingStore, nil, time.Minute, m, zap.NewNop())
	result, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StagedDatasets)
	assert.Zero(t, result.Sessions)
	assert.NotContains(t, scrape(t, m), "orgchart_sessions_swept_total 1")
}
