package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func sampleRun(id string, started time.Time) *Run {
	return &Run{
		ID:        id,
		Command:   "filter",
		Input:     "in.exec",
		Output:    "out.exec",
		Methods:   []string{"toString", "hashCode"},
		Policy:    "add",
		StartedAt: started,
	}
}

func TestGormRunRepository_Lifecycle(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	run := sampleRun("run-1", started)
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, []string{"toString", "hashCode"}, got.Methods)
	assert.Nil(t, got.FinishedAt)

	finished := started.Add(time.Second)
	run.Status = RunStatusSucceeded
	run.FinishedAt = &finished
	run.Classes, run.Updated, run.Created, run.ProbesMarked, run.Entries = 2, 1, 1, 4, 3
	classes := []RunClass{
		{Name: "com/acme/B", ClassID: 0xffffffffffffffff, Outcome: "created", ProbesMarked: 2},
		{Name: "com/acme/A", ClassID: 0x1, Outcome: "updated", ProbesMarked: 2},
	}
	require.NoError(t, repo.FinishRun(ctx, run, classes))

	got, err = repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, got.Status)
	assert.Equal(t, 4, got.ProbesMarked)
	assert.Equal(t, 3, got.Entries)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))

	stored, err := repo.ListRunClasses(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "com/acme/A", stored[0].Name)
	assert.Equal(t, uint64(0xffffffffffffffff), stored[1].ClassID)
	assert.Equal(t, "run-1", stored[1].RunID)
}

func TestGormRunRepository_NotFound(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = repo.FinishRun(ctx, &Run{ID: "missing", Status: RunStatusFailed}, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGormRunRepository_ListRuns(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	starts := []struct {
		id     string
		offset time.Duration
	}{
		{"old", 0},
		{"newest", 2 * time.Hour},
		{"middle", time.Hour},
	}
	for _, s := range starts {
		require.NoError(t, repo.CreateRun(ctx, sampleRun(s.id, base.Add(s.offset))))
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newest", runs[0].ID)
	assert.Equal(t, "middle", runs[1].ID)
}
