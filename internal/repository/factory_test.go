package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/pkg/config"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LedgerConfig
		want    string
		wantErr bool
	}{
		{"sqlite", config.LedgerConfig{Type: "sqlite"}, "sqlite", false},
		{"postgres", config.LedgerConfig{Type: "postgres", Host: "db"}, "postgres", false},
		{"postgresql alias", config.LedgerConfig{Type: "postgresql", Host: "db"}, "postgres", false},
		{"mysql", config.LedgerConfig{Type: "mysql", Host: "db"}, "mysql", false},
		{"unknown", config.LedgerConfig{Type: "oracle"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.LedgerConfig{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")}
	ledger, err := Open(cfg)
	require.NoError(t, err)
	defer ledger.Close()

	assert.IsType(t, &GormRunRepository{}, ledger.Runs)
	require.NoError(t, ledger.HealthCheck(context.Background()))
	assert.NotNil(t, ledger.DB())

	require.NoError(t, ledger.Runs.CreateRun(context.Background(), &Run{ID: "r", Methods: []string{"m"}}))
	runs, err := ledger.Runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNewLedger_RawSQL(t *testing.T) {
	db := setupTestDB(t)

	l, err := NewLedger(db, &config.LedgerConfig{Type: "mysql", RawSQL: true})
	require.NoError(t, err)
	assert.Equal(t, DialectMySQL, l.Runs.(*SQLRunRepository).dialect)

	l, err = NewLedger(db, &config.LedgerConfig{Type: "postgres", RawSQL: true})
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, l.Runs.(*SQLRunRepository).dialect)

	_, err = NewLedger(db, &config.LedgerConfig{Type: "sqlite", RawSQL: true})
	assert.Error(t, err)
}

func TestLedger_CloseNil(t *testing.T) {
	var l *Ledger
	assert.NoError(t, l.Close())
}
