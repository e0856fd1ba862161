package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun inserts a run in the running state.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if err := r.db.WithContext(ctx).Create(newFilterRun(run)).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final state of run and its class outcomes.
func (r *GormRunRepository) FinishRun(ctx context.Context, run *Run, classes []RunClass) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := newFilterRun(run)
		result := tx.Model(&FilterRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":        row.Status,
				"error":         row.Error,
				"classes":       row.Classes,
				"updated":       row.Updated,
				"created":       row.Created,
				"skipped":       row.Skipped,
				"mismatches":    row.Mismatches,
				"probes_marked": row.ProbesMarked,
				"entries":       row.Entries,
				"finished_at":   row.FinishedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to finish run: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
		}

		if len(classes) == 0 {
			return nil
		}
		rows := make([]FilterRunClass, len(classes))
		for i, c := range classes {
			rows[i] = newFilterRunClass(run.ID, c)
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to save run classes: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by id.
func (r *GormRunRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	var row FilterRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.ToModel(), nil
}

// ListRuns returns the most recent runs first.
func (r *GormRunRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	var rows []FilterRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToModel()
	}
	return runs, nil
}

// ListRunClasses returns the class outcomes of a run ordered by name.
func (r *GormRunRepository) ListRunClasses(ctx context.Context, runID string) ([]RunClass, error) {
	var rows []FilterRunClass
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list run classes: %w", err)
	}

	classes := make([]RunClass, 0, len(rows))
	for i := range rows {
		c, err := rows[i].ToModel()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}
