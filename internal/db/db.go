package db

import (
	"database/sql"
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"zerodte/internal/config"
)

// dryRunDSN only has to parse; a dry-run session never dials it.
const dryRunDSN = "host=localhost user=zerodte dbname=zerodte sslmode=disable"

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Unique violations surface as gorm.ErrDuplicatedKey for the run claim.
		TranslateError: true,
	}
}

// Open connects the job store and sizes its pool from cfg. Zero pool limits keep the driver defaults.
func Open(cfg config.DBConfig) (*DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("db: dsn is empty")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

// OpenDryRun returns a postgres-dialect session that builds statements without executing them.
func OpenDryRun() (*gorm.DB, error) {
	gcfg := gormConfig()
	gcfg.DryRun = true
	gcfg.DisableAutomaticPing = true
	return gorm.Open(postgres.New(postgres.Config{DSN: dryRunDSN, PreferSimpleProtocol: true}), gcfg)
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

// SetTimezone pins the session timezone so timestamptz columns read back in tz.
func SetTimezone(db *DB, tz string) error {
	tz = strings.TrimSpace(tz)
	if db == nil || db.SQL == nil || tz == "" {
		return nil
	}
	if strings.ContainsAny(tz, "'\\;") {
		return errors.New("db: invalid timezone " + tz)
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}
