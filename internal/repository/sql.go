package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the bind parameter syntax of a SQLRunRepository.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// SQLRunRepository implements RunRepository with hand-written SQL. Tables
// are expected to exist; Open migrates them through GORM.
type SQLRunRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRunRepository creates a repository over db.
func NewSQLRunRepository(db *sql.DB, dialect Dialect) *SQLRunRepository {
	return &SQLRunRepository{db: db, dialect: dialect}
}

// NewMySQLRunRepository creates a repository for MySQL.
func NewMySQLRunRepository(db *sql.DB) *SQLRunRepository {
	return NewSQLRunRepository(db, DialectMySQL)
}

// bind rewrites ? placeholders to $n for postgres.
func (r *SQLRunRepository) bind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

const runColumns = `id, command, input, output, methods, policy, status, COALESCE(error, ''),
	classes, updated, created, skipped, mismatches, probes_marked, entries,
	started_at, finished_at`

// CreateRun inserts a run in the running state.
func (r *SQLRunRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	query := r.bind(`
		INSERT INTO filter_run (id, command, input, output, methods, policy, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	methods, err := StringList(run.Methods).Value()
	if err != nil {
		return fmt.Errorf("failed to encode methods: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Command, run.Input, run.Output, methods, run.Policy, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final state of run and its class outcomes.
func (r *SQLRunRepository) FinishRun(ctx context.Context, run *Run, classes []RunClass) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := r.bind(`
		UPDATE filter_run
		SET status = ?, error = ?, classes = ?, updated = ?, created = ?, skipped = ?,
			mismatches = ?, probes_marked = ?, entries = ?, finished_at = ?
		WHERE id = ?
	`)
	result, err := tx.ExecContext(ctx, query,
		run.Status, run.Error, run.Classes, run.Updated, run.Created, run.Skipped,
		run.Mismatches, run.ProbesMarked, run.Entries, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	if len(classes) > 0 {
		stmt, err := tx.PrepareContext(ctx, r.bind(`
			INSERT INTO filter_run_class (run_id, name, class_id, outcome, probes_marked)
			VALUES (?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare class insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range classes {
			if _, err := stmt.ExecContext(ctx, run.ID, c.Name, formatClassID(c.ClassID), c.Outcome, c.ProbesMarked); err != nil {
				return fmt.Errorf("failed to save class %s: %w", c.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var methods StringList
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.Command, &run.Input, &run.Output, &methods, &run.Policy, &run.Status, &run.Error,
		&run.Classes, &run.Updated, &run.Created, &run.Skipped, &run.Mismatches, &run.ProbesMarked, &run.Entries,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Methods = []string(methods)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (r *SQLRunRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := r.bind(`SELECT ` + runColumns + ` FROM filter_run WHERE id = ?`)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *SQLRunRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := r.bind(`SELECT ` + runColumns + ` FROM filter_run ORDER BY started_at DESC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListRunClasses returns the class outcomes of a run ordered by name.
func (r *SQLRunRepository) ListRunClasses(ctx context.Context, runID string) ([]RunClass, error) {
	query := r.bind(`
		SELECT run_id, name, class_id, outcome, probes_marked
		FROM filter_run_class
		WHERE run_id = ?
		ORDER BY name ASC
	`)
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run classes: %w", err)
	}
	defer rows.Close()

	var classes []RunClass
	for rows.Next() {
		var row FilterRunClass
		if err := rows.Scan(&row.RunID, &row.Name, &row.ClassID, &row.Outcome, &row.ProbesMarked); err != nil {
			return nil, fmt.Errorf("failed to scan run class: %w", err)
		}
		c, err := row.ToModel()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list run classes: %w", err)
	}
	return classes, nil
}
