package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a bulk upsert target.
type UpsertSpec struct {
	Table   string   // target table
	Columns []string // columns in row order
	Key     []string // columns of the unique constraint
	Update  []string // columns rewritten on conflict; nil = every non-key column
}

func (s UpsertSpec) validate() error {
	if len(s.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(s.Key) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// updateColumns resolves the SET list, defaulting to all non-key columns.
func (s UpsertSpec) updateColumns() []string {
	if s.Update != nil {
		return s.Update
	}
	key := make(map[string]bool, len(s.Key))
	for _, k := range s.Key {
		key[k] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if !key[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s UpsertSpec) stagingTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(s.Table, ".", "_")
}

// mergeSQL builds the INSERT ... SELECT ... ON CONFLICT statement that moves
// staged rows into the target table.
func (s UpsertSpec) mergeSQL() string {
	sets := make([]string, 0, len(s.Columns))
	for _, col := range s.updateColumns() {
		q := pgx.Identifier{col}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{s.Table}.Sanitize(),
		quoteAndJoin(s.Columns),
		quoteAndJoin(s.Columns),
		pgx.Identifier{s.stagingTable()}.Sanitize(),
		quoteAndJoin(s.Key),
		strings.Join(sets, ", "),
	)
}

// BulkUpsert stages rows into a session temp table with COPY, then merges
// them into the target with one INSERT ... ON CONFLICT DO UPDATE. The temp
// table drops with the transaction. Returns the number of rows merged.
func BulkUpsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := spec.stagingTable()
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(),
		pgx.Identifier{spec.Table}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", spec.Table)
	}

	tag, err := tx.Exec(ctx, spec.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
