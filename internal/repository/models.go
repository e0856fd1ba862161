package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FilterRun represents the filter_run table.
type FilterRun struct {
	ID           string     `gorm:"column:id;type:varchar(36);primaryKey"`
	Command      string     `gorm:"column:command;type:varchar(32)"`
	Input        string     `gorm:"column:input;type:varchar(1024)"`
	Output       string     `gorm:"column:output;type:varchar(1024)"`
	Methods      StringList `gorm:"column:methods;type:text"`
	Policy       string     `gorm:"column:policy;type:varchar(16)"`
	Status       RunStatus  `gorm:"column:status;type:varchar(16);index"`
	Error        string     `gorm:"column:error;type:text"`
	Classes      int        `gorm:"column:classes"`
	Updated      int        `gorm:"column:updated"`
	Created      int        `gorm:"column:created"`
	Skipped      int        `gorm:"column:skipped"`
	Mismatches   int        `gorm:"column:mismatches"`
	ProbesMarked int        `gorm:"column:probes_marked"`
	Entries      int        `gorm:"column:entries"`
	StartedAt    time.Time  `gorm:"column:started_at;index"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
}

// TableName returns the table name for FilterRun.
func (FilterRun) TableName() string {
	return "filter_run"
}

// ToModel converts FilterRun to Run.
func (r *FilterRun) ToModel() *Run {
	return &Run{
		ID:           r.ID,
		Command:      r.Command,
		Input:        r.Input,
		Output:       r.Output,
		Methods:      []string(r.Methods),
		Policy:       r.Policy,
		Status:       r.Status,
		Error:        r.Error,
		Classes:      r.Classes,
		Updated:      r.Updated,
		Created:      r.Created,
		Skipped:      r.Skipped,
		Mismatches:   r.Mismatches,
		ProbesMarked: r.ProbesMarked,
		Entries:      r.Entries,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

func newFilterRun(r *Run) *FilterRun {
	return &FilterRun{
		ID:           r.ID,
		Command:      r.Command,
		Input:        r.Input,
		Output:       r.Output,
		Methods:      StringList(r.Methods),
		Policy:       r.Policy,
		Status:       r.Status,
		Error:        r.Error,
		Classes:      r.Classes,
		Updated:      r.Updated,
		Created:      r.Created,
		Skipped:      r.Skipped,
		Mismatches:   r.Mismatches,
		ProbesMarked: r.ProbesMarked,
		Entries:      r.Entries,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

// FilterRunClass represents the filter_run_class table.
type FilterRunClass struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string `gorm:"column:run_id;type:varchar(36);index"`
	Name         string `gorm:"column:name;type:varchar(512)"`
	ClassID      string `gorm:"column:class_id;type:varchar(16)"`
	Outcome      string `gorm:"column:outcome;type:varchar(32)"`
	ProbesMarked int    `gorm:"column:probes_marked"`
}

// TableName returns the table name for FilterRunClass.
func (FilterRunClass) TableName() string {
	return "filter_run_class"
}

// ToModel converts FilterRunClass to RunClass. Class ids are stored as hex
// because not every database has an unsigned 64-bit column.
func (c *FilterRunClass) ToModel() (RunClass, error) {
	id, err := parseClassID(c.ClassID)
	if err != nil {
		return RunClass{}, err
	}
	return RunClass{
		RunID:        c.RunID,
		Name:         c.Name,
		ClassID:      id,
		Outcome:      c.Outcome,
		ProbesMarked: c.ProbesMarked,
	}, nil
}

func newFilterRunClass(runID string, c RunClass) FilterRunClass {
	return FilterRunClass{
		RunID:        runID,
		Name:         c.Name,
		ClassID:      formatClassID(c.ClassID),
		Outcome:      c.Outcome,
		ProbesMarked: c.ProbesMarked,
	}
}

func formatClassID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func parseClassID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid class id %q: %w", s, err)
	}
	return id, nil
}

// StringList stores a string slice as a JSON array.
type StringList []string

// Value implements driver.Valuer interface.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface.
func (l *StringList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for StringList")
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*l = out
	return nil
}
