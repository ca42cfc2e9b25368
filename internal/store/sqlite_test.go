package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNewSQLite_InvalidDSN(t *testing.T) {
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
}

func TestNewSQLite_Pragmas(t *testing.T) {
	s := newTestSQLiteStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)

	// Re-running migration against an initialized database is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Migrate(ctx))

	job, err := s1.CreateJob(ctx, model.Job{
		Project:    "health-plans",
		SourceType: "document",
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s2.Close() //nolint:errcheck

	got, err := s2.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "health-plans", got.Project)
}

func TestSQLite_CascadeDeleteResults(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, model.Job{Project: "health-plans", SourceType: "document"})
	require.NoError(t, err)

	ids, err := s.RecordResults(ctx, []model.ExtractionResult{
		{JobID: job.ID, EntityID: "entity-1", AttrSlug: "features", ExtractedValue: "Virtual GP", Confidence: 0.9},
	})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID)
	require.NoError(t, err)

	// foreign_keys pragma is on, so the job's results cascade away.
	_, err = s.GetResult(ctx, ids[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
