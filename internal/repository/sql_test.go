package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runRowColumns = []string{
	"id", "command", "input", "output", "methods", "policy", "status", "error",
	"classes", "updated", "created", "skipped", "mismatches", "probes_marked", "entries",
	"started_at", "finished_at",
}

func TestSQLRunRepository_CreateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO filter_run").
		WithArgs("run-1", "filter", "in.exec", "out.exec", `["toString"]`, "add", RunStatusRunning, started).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &Run{ID: "run-1", Command: "filter", Input: "in.exec", Output: "out.exec",
		Methods: []string{"toString"}, Policy: "add", StartedAt: started}
	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRepository_FinishRun(t *testing.T) {
	finished := time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)
	run := &Run{ID: "run-1", Status: RunStatusSucceeded, Classes: 1, Created: 1, ProbesMarked: 2, Entries: 1,
		FinishedAt: &finished}
	classes := []RunClass{{Name: "com/acme/B", ClassID: 0xabc, Outcome: "created", ProbesMarked: 2}}

	t.Run("commits", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE filter_run").
			WithArgs(RunStatusSucceeded, "", 1, 0, 1, 0, 0, 2, 1, &finished, "run-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectPrepare("INSERT INTO filter_run_class")
		mock.ExpectExec("INSERT INTO filter_run_class").
			WithArgs("run-1", "com/acme/B", "0000000000000abc", "created", 2).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, NewMySQLRunRepository(db).FinishRun(context.Background(), run, classes))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on class failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE filter_run").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectPrepare("INSERT INTO filter_run_class")
		mock.ExpectExec("INSERT INTO filter_run_class").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err = NewMySQLRunRepository(db).FinishRun(context.Background(), run, classes)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "com/acme/B")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown run", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE filter_run").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = NewMySQLRunRepository(db).FinishRun(context.Background(), run, nil)
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLRunRepository_GetRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, command").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runRowColumns).AddRow(
			"run-1", "generate", "", "out.exec", `["hashCode"]`, "skip", "succeeded", "",
			1, 0, 1, 0, 0, 2, 1, started, nil,
		))

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "generate", run.Command)
	assert.Equal(t, []string{"hashCode"}, run.Methods)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.ProbesMarked)
	assert.Nil(t, run.FinishedAt)

	mock.ExpectQuery("SELECT id, command").WithArgs("missing").WillReturnRows(sqlmock.NewRows(runRowColumns))
	_, err = repo.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRepository_ListRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	mock.ExpectQuery(`ORDER BY started_at DESC LIMIT \?`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("b", "filter", "in", "out", `["x"]`, "add", "failed", "boom", 0, 0, 0, 0, 0, 0, 0, finished, finished).
			AddRow("a", "filter", "in", "out", `["x"]`, "add", "succeeded", "", 1, 1, 0, 0, 0, 1, 1, started, finished))

	runs, err := NewMySQLRunRepository(db).ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "boom", runs[0].Error)
	require.NotNil(t, runs[1].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRepository_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRunRepository(db, DialectPostgres)
	mock.ExpectQuery(`WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "name", "class_id", "outcome", "probes_marked"}).
			AddRow("run-1", "com/acme/A", "00000000000000ff", "updated", 2))

	classes, err := repo.ListRunClasses(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, uint64(0xff), classes[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "a = $1 AND b = $2", repo.bind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", NewMySQLRunRepository(db).bind("a = ?"))
}

func TestSQLRunRepository_BadClassID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM filter_run_class").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "name", "class_id", "outcome", "probes_marked"}).
			AddRow("run-1", "com/acme/A", "not-hex", "updated", 0))

	_, err = NewMySQLRunRepository(db).ListRunClasses(context.Background(), "run-1")
	assert.Error(t, err)
}
