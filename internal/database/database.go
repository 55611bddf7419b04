package database

import (
	"fmt"
	"sync"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Options struct {
	Driver   string
	WriteDSN string
	ReadDSNs []string
}

type DBManager struct {
	WriteDB      *gorm.DB
	ReadDBs      []*gorm.DB
	CurrentShard int
	shardMutex   sync.Mutex
}

// Open connects the primary and any read replicas and migrates the schema.
func Open(opts Options) (*DBManager, error) {
	log := logger.Component("database")

	writeDB, err := openOne(opts.Driver, opts.WriteDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to write database: %w", err)
	}
	m := &DBManager{
		WriteDB: writeDB,
		ReadDBs: make([]*gorm.DB, 0, len(opts.ReadDSNs)),
	}

	if err := m.WriteDB.AutoMigrate(
		&models.FlightCache{},
		&models.DailyBudgetCounter{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	sqlDB, err := m.WriteDB.DB()
	if err == nil {
		if opts.Driver == "sqlite" {
			// SQLite allows a single writer; serialize on one connection.
			sqlDB.SetMaxOpenConns(1)
			sqlDB.SetMaxIdleConns(1)
			sqlDB.SetConnMaxLifetime(0)
		} else {
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetMaxOpenConns(100)
			sqlDB.SetConnMaxLifetime(time.Hour)
		}
	}

	for i, dsn := range opts.ReadDSNs {
		readDB, err := openOne(opts.Driver, dsn)
		if err != nil {
			log.Warn().Err(err).Int("replica", i).Msg("Failed to connect to read replica")
			continue
		}
		m.ReadDBs = append(m.ReadDBs, readDB)
	}

	log.Info().Str("driver", opts.Driver).Int("replicas", len(m.ReadDBs)).Msg("Database connection established")
	return m, nil
}

func openOne(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// GetReadDB returns a read replica using round-robin
func (m *DBManager) GetReadDB() *gorm.DB {
	m.shardMutex.Lock()
	defer m.shardMutex.Unlock()

	if len(m.ReadDBs) == 0 {
		return m.WriteDB
	}

	db := m.ReadDBs[m.CurrentShard]
	m.CurrentShard = (m.CurrentShard + 1) % len(m.ReadDBs)
	return db
}

// Ping checks the primary connection.
func (m *DBManager) Ping() error {
	sqlDB, err := m.WriteDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases every pool.
func (m *DBManager) Close() error {
	var firstErr error
	for _, db := range append([]*gorm.DB{m.WriteDB}, m.ReadDBs...) {
		sqlDB, err := db.DB()
		if err != nil {
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
