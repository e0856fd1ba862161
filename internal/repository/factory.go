package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/jacoco-filter/pkg/config"
	"github.com/jacoco-filter/pkg/telemetry"
)

// DBType represents the database type.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
)

// DefaultSQLiteDSN is used when a sqlite ledger has no dsn.
const DefaultSQLiteDSN = "jacoco-filter.db"

// Dialector returns the GORM dialector for cfg.
func Dialector(cfg *config.LedgerConfig) (gorm.Dialector, error) {
	switch DBType(cfg.Type) {
	case DBTypeSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		return sqlite.Open(dsn), nil
	case DBTypePostgres, DBType("postgresql"):
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Host, portOr(cfg.Port, 5432), cfg.User, cfg.Password, cfg.Database,
			)
		}
		return postgres.Open(dsn), nil
	case DBTypeMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
				cfg.User, cfg.Password, cfg.Host, portOr(cfg.Port, 3306), cfg.Database,
			)
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func portOr(port, def int) int {
	if port <= 0 {
		return def
	}
	return port
}

// NewGormDB opens, configures and pings the ledger database.
func NewGormDB(dialector gorm.Dialector, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to enable telemetry: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(max(maxConns/2, 1))
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&FilterRun{}, &FilterRunClass{}); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

// Ledger bundles the run repository with its connection.
type Ledger struct {
	Runs   RunRepository
	gormDB *gorm.DB
}

// Open connects to the ledger described by cfg and migrates its tables.
func Open(cfg *config.LedgerConfig) (*Ledger, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := NewGormDB(dialector, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		closeGorm(db)
		return nil, err
	}

	ledger, err := NewLedger(db, cfg)
	if err != nil {
		closeGorm(db)
		return nil, err
	}
	return ledger, nil
}

// NewLedger picks the repository implementation for an open database.
func NewLedger(db *gorm.DB, cfg *config.LedgerConfig) (*Ledger, error) {
	l := &Ledger{gormDB: db}
	if !cfg.RawSQL {
		l.Runs = NewGormRunRepository(db)
		return l, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch DBType(cfg.Type) {
	case DBTypeMySQL:
		l.Runs = NewMySQLRunRepository(sqlDB)
	case DBTypePostgres, DBType("postgresql"):
		l.Runs = NewSQLRunRepository(sqlDB, DialectPostgres)
	default:
		return nil, fmt.Errorf("raw SQL ledger is not supported for %s", cfg.Type)
	}
	return l, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l == nil || l.gormDB == nil {
		return nil
	}
	sqlDB, err := l.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck verifies the database connection is still alive.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	sqlDB, err := l.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB returns the underlying sql.DB connection.
func (l *Ledger) DB() *sql.DB {
	sqlDB, _ := l.gormDB.DB()
	return sqlDB
}
