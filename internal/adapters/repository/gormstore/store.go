// Package gormstore implements repository.Store on a relational database
// through gorm. Postgres is the production dialect; the pure Go sqlite
// dialect serves single-node deployments and tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrUnknownDriver is returned by Open for unsupported drivers.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store is a gorm-backed repository.Store. Mutations that must be atomic run
// in one transaction; on postgres the match row is locked FOR UPDATE first.
type Store struct {
	db      *gorm.DB
	dialect string
	newID   func() string
	log     logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithIDGenerator replaces the invitation and history id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open connects to the database and migrates the schema.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection turns every
		// transaction into a serial section.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts...)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: db.Dialector.Name(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("gormstore")
	}
	if err := db.AutoMigrate(
		&clubRecord{},
		&groupRecord{},
		&groupMemberRecord{},
		&playerRecord{},
		&matchRecord{},
		&invitationRecord{},
		&ratingHistoryRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.log.Info(context.Background(), "store ready", logger.String("dialect", s.dialect))
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// forUpdate locks the selected rows until the transaction ends. sqlite has no
// row locks; its single connection already serializes transactions.
func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.dialect == DriverPostgres {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// translate maps gorm errors onto repository sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
