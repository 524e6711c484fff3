package gormstore

import (
	"context"
	"testing"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// lockedTables records, per table, whether a query carried a row-locking
// clause.
func lockedTables(t *testing.T, s *Store) map[string]bool {
	t.Helper()
	seen := make(map[string]bool)
	err := s.db.Callback().Query().Before("gorm:query").Register("rally:record_locks", func(db *gorm.DB) {
		_, locked := db.Statement.Clauses["FOR"]
		seen[db.Statement.Table] = seen[db.Statement.Table] || locked
	})
	require.NoError(t, err)
	return seen
}

func TestRatingTxLocksRowsOnPostgres(t *testing.T) {
	s, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seen := lockedTables(t, s)
	// Build the statements as postgres would without sending them.
	s.dialect = DriverPostgres
	dry := &ratingTx{db: s.db.Session(&gorm.Session{DryRun: true}), store: s}
	ctx := context.Background()

	_ = dry.LockMatch(ctx, "m1")
	_, _ = dry.GetPlayer(ctx, "p1")

	assert.True(t, seen["matches"], "match row is locked")
	assert.True(t, seen["players"], "player row is locked")
}

func TestRatingTxLockMatchToleratesUnknownMatch(t *testing.T) {
	s, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.WithRatingTx(context.Background(), func(tx repository.RatingTx) error {
		return tx.LockMatch(context.Background(), "no-such-match")
	})
	assert.NoError(t, err)
}
