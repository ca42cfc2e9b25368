package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/db"
	"github.com/sells-group/curator-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_job":       `INSERT INTO jobs (id, project, entity, kind, source_type, source_ref, status, params, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"insert_result":    `INSERT INTO extraction_results (id, job_id, entity_id, attr_slug, extracted_value, confidence, reasoning, source_evidence_id, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"review_result":    `UPDATE extraction_results SET status = $1, reviewed_value = $2, reviewed_at = $3 WHERE id = $4 AND status = 'pending'`,
	"insert_attribute": `INSERT INTO entity_attributes (id, project, entity_id, attr_slug, value, value_norm, source, confidence, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"resolve_mapping":  `SELECT f.id, f.project, f.attr_slug, f.canonical_name, COALESCE(f.description, ''), COALESCE(f.category, ''), f.created_at FROM feature_mappings m JOIN canonical_features f ON f.id = m.feature_id WHERE m.project = $1 AND m.attr_slug = $2 AND m.raw_norm = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project       TEXT NOT NULL,
	entity        TEXT,
	kind          TEXT NOT NULL DEFAULT 'extraction',
	source_type   TEXT NOT NULL,
	source_ref    TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	model         TEXT,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration      BIGINT NOT NULL DEFAULT 0,
	result_count  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	params        JSONB,
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_project_status ON jobs(project, status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);

CREATE TABLE IF NOT EXISTS extraction_results (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id             TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	entity_id          TEXT NOT NULL,
	attr_slug          TEXT NOT NULL,
	extracted_value    TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning          TEXT,
	source_evidence_id TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	reviewed_value     TEXT,
	reviewed_at        TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_job_id ON extraction_results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_queue ON extraction_results(status, confidence DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS entity_attributes (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project     TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	attr_slug   TEXT NOT NULL,
	value       TEXT NOT NULL,
	value_norm  TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT 'manual',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attributes_entity ON entity_attributes(entity_id);
CREATE INDEX IF NOT EXISTS idx_attributes_project_slug ON entity_attributes(project, attr_slug);

CREATE TABLE IF NOT EXISTS canonical_features (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project        TEXT NOT NULL,
	attr_slug      TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	name_norm      TEXT NOT NULL,
	description    TEXT,
	category       TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project, attr_slug, name_norm)
);

CREATE TABLE IF NOT EXISTS feature_mappings (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	feature_id TEXT NOT NULL REFERENCES canonical_features(id) ON DELETE CASCADE,
	project    TEXT NOT NULL,
	attr_slug  TEXT NOT NULL,
	raw_value  TEXT NOT NULL,
	raw_norm   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project, attr_slug, raw_norm)
);

CREATE INDEX IF NOT EXISTS idx_mappings_feature_id ON feature_mappings(feature_id);

CREATE TABLE IF NOT EXISTS dimensions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project     TEXT NOT NULL,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL,
	description TEXT,
	data_type   TEXT NOT NULL DEFAULT 'text',
	enum_values JSONB,
	source      TEXT,
	ai_prompt   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project, slug)
);

CREATE TABLE IF NOT EXISTS dimension_values (
	company_id   TEXT NOT NULL,
	dimension_id TEXT NOT NULL REFERENCES dimensions(id) ON DELETE CASCADE,
	value        TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	source       TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, dimension_id)
);

CREATE INDEX IF NOT EXISTS idx_dimension_values_dimension ON dimension_values(dimension_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now().UTC()
	job.Status = model.JobStatusPending
	if job.Kind == "" {
		job.Kind = model.JobKindExtraction
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, project, entity, kind, source_type, source_ref, status, params, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Project, job.Entity, string(job.Kind), job.SourceType, job.SourceRef, string(job.Status), job.Params, job.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	var paramsNull, resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, project, COALESCE(entity, ''), kind, source_type, COALESCE(source_ref, ''), status,
		        COALESCE(model, ''), cost, duration, result_count, COALESCE(error_message, ''),
		        params, result, created_at, completed_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Project, &j.Entity, &j.Kind, &j.SourceType, &j.SourceRef, &j.Status,
		&j.Model, &j.Cost, &j.Duration, &j.ResultCount, &j.ErrorMessage,
		&paramsNull, &resultNull, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	if paramsNull != nil {
		j.Params = json.RawMessage(*paramsNull)
	}
	if resultNull != nil {
		j.Result = json.RawMessage(*resultNull)
	}
	return &j, nil
}

// UpdateJob applies a partial update and reports whether a row changed. A
// status change carries the forward-only guard in the WHERE clause, so a
// stale or repeated transition is a zero-row no-op, not an error.
func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, params UpdateJobParams) (bool, error) {
	var sets []string
	var args []any
	argIdx := 1

	add := func(col string, val any) int {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
		return argIdx - 1
	}

	statusIdx := 0
	if params.Status != nil {
		statusIdx = add("status", string(*params.Status))
	}
	if params.Model != nil {
		add("model", *params.Model)
	}
	if params.Cost != nil {
		add("cost", *params.Cost)
	}
	if params.Duration != nil {
		add("duration", *params.Duration)
	}
	if params.ResultCount != nil {
		add("result_count", *params.ResultCount)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.Result != nil {
		add("result", params.Result)
	}
	if params.CompletedAt != nil {
		add("completed_at", params.CompletedAt.UTC())
	}

	if len(sets) == 0 {
		return false, eris.Errorf("postgres: update job %s: no fields to set", jobID)
	}

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIdx)
	args = append(args, jobID)
	argIdx++

	if params.Status != nil {
		query += fmt.Sprintf(
			` AND (CASE status WHEN 'pending' THEN 0 WHEN 'running' THEN 1 ELSE 2 END) < (CASE $%d WHEN 'pending' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)`,
			statusIdx,
		)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update job %s", jobID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, project, COALESCE(entity, ''), kind, source_type, COALESCE(source_ref, ''), status,
	                 COALESCE(model, ''), cost, duration, result_count, COALESCE(error_message, ''),
	                 params, result, created_at, completed_at
	          FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Project != "" {
		query += fmt.Sprintf(` AND project = $%d`, argIdx)
		args = append(args, filter.Project)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Entity != "" {
		query += fmt.Sprintf(` AND entity = $%d`, argIdx)
		args = append(args, filter.Entity)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var paramsNull, resultNull *[]byte

		if err := rows.Scan(&j.ID, &j.Project, &j.Entity, &j.Kind, &j.SourceType, &j.SourceRef, &j.Status,
			&j.Model, &j.Cost, &j.Duration, &j.ResultCount, &j.ErrorMessage,
			&paramsNull, &resultNull, &j.CreatedAt, &j.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if paramsNull != nil {
			j.Params = json.RawMessage(*paramsNull)
		}
		if resultNull != nil {
			j.Result = json.RawMessage(*resultNull)
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// RecordResults inserts a batch of candidate results in one transaction,
// all pending. Either the whole batch lands or none of it does.
func (s *PostgresStore) RecordResults(ctx context.Context, results []model.ExtractionResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(results))
	now := time.Now().UTC()

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range results {
			id := uuid.New().String()
			createdAt := now
			if !r.CreatedAt.IsZero() {
				createdAt = r.CreatedAt.UTC()
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO extraction_results (id, job_id, entity_id, attr_slug, extracted_value, confidence, reasoning, source_evidence_id, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				id, r.JobID, r.EntityID, r.AttrSlug, r.ExtractedValue, r.Confidence, r.Reasoning, r.SourceEvidenceID, string(model.ResultStatusPending), createdAt,
			)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return eris.Wrapf(ErrNotFound, "postgres: job %s", r.JobID)
				}
				return eris.Wrapf(err, "postgres: insert result for job %s", r.JobID)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, resultID string) (*model.ExtractionResult, error) {
	var r model.ExtractionResult

	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, entity_id, attr_slug, extracted_value, confidence,
		        COALESCE(reasoning, ''), COALESCE(source_evidence_id, ''), status,
		        reviewed_value, reviewed_at, created_at
		 FROM extraction_results WHERE id = $1`,
		resultID,
	).Scan(&r.ID, &r.JobID, &r.EntityID, &r.AttrSlug, &r.ExtractedValue, &r.Confidence,
		&r.Reasoning, &r.SourceEvidenceID, &r.Status, &r.ReviewedValue, &r.ReviewedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: result %s", resultID)
		}
		return nil, eris.Wrapf(err, "postgres: get result %s", resultID)
	}
	return &r, nil
}

// ReviewQueue returns pending results with job context, highest confidence
// first and oldest first among ties, so reviewers clear the easy majority
// quickly without starving early items.
func (s *PostgresStore) ReviewQueue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.job_id, r.entity_id, r.attr_slug, r.extracted_value, r.confidence,
		        COALESCE(r.reasoning, ''), COALESCE(r.source_evidence_id, ''), r.status, r.created_at,
		        j.project, j.source_type, COALESCE(j.model, '')
		 FROM extraction_results r
		 JOIN jobs j ON j.id = r.job_id
		 WHERE r.status = 'pending' AND j.project = $1
		 ORDER BY r.confidence DESC, r.created_at ASC
		 LIMIT $2 OFFSET $3`,
		project, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: review queue")
	}
	defer rows.Close()

	var items []model.ReviewQueueItem
	for rows.Next() {
		var it model.ReviewQueueItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.EntityID, &it.AttrSlug, &it.ExtractedValue, &it.Confidence,
			&it.Reasoning, &it.SourceEvidenceID, &it.Status, &it.CreatedAt,
			&it.Project, &it.SourceType, &it.Model); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: review queue iterate")
}

// ReviewResult transitions a pending result and, for accept/edit, writes the
// attribute row in the same transaction. The conditional update is the whole
// concurrency story: a second reviewer matches zero rows and gets
// applied=false, never a double attribute write.
func (s *PostgresStore) ReviewResult(ctx context.Context, resultID string, action model.ReviewAction, editedValue *string) (bool, error) {
	applied := false

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()

		tag, err := tx.Exec(ctx,
			`UPDATE extraction_results SET status = $1, reviewed_value = $2, reviewed_at = $3 WHERE id = $4 AND status = 'pending'`,
			string(action.ResultStatus()), editedValue, now, resultID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: review result %s", resultID)
		}
		if tag.RowsAffected() == 0 {
			// Already reviewed or unknown id: not applied.
			return nil
		}
		applied = true

		if !action.Applies() {
			return nil
		}

		var (
			project  string
			entityID string
			attrSlug string
			value    string
			conf     float64
		)
		err = tx.QueryRow(ctx,
			`SELECT j.project, r.entity_id, r.attr_slug, COALESCE(r.reviewed_value, r.extracted_value), r.confidence
			 FROM extraction_results r
			 JOIN jobs j ON j.id = r.job_id
			 WHERE r.id = $1`,
			resultID,
		).Scan(&project, &entityID, &attrSlug, &value, &conf)
		if err != nil {
			return eris.Wrapf(err, "postgres: load reviewed result %s", resultID)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO entity_attributes (id, project, entity_id, attr_slug, value, value_norm, source, confidence, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New().String(), project, entityID, attrSlug, value, model.Fold(value), model.AttributeSourceExtraction, conf, now,
		)
		return eris.Wrapf(err, "postgres: apply result %s", resultID)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *PostgresStore) PipelineStats(ctx context.Context, project string) (*PipelineStats, error) {
	stats := &PipelineStats{
		Project:         project,
		JobsByStatus:    map[string]int{},
		ResultsByStatus: map[string]int{},
	}

	jobRows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(cost), 0) FROM jobs WHERE project = $1 GROUP BY status`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: job stats")
	}
	defer jobRows.Close()

	for jobRows.Next() {
		var status string
		var count int
		var cost float64
		if err := jobRows.Scan(&status, &count, &cost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job stats")
		}
		stats.JobsByStatus[status] = count
		stats.TotalCost += cost
	}
	if err := jobRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: job stats iterate")
	}

	resultRows, err := s.pool.Query(ctx,
		`SELECT r.status, COUNT(*)
		 FROM extraction_results r
		 JOIN jobs j ON j.id = r.job_id
		 WHERE j.project = $1 GROUP BY r.status`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: result stats")
	}
	defer resultRows.Close()

	for resultRows.Next() {
		var status string
		var count int
		if err := resultRows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result stats")
		}
		stats.ResultsByStatus[status] = count
	}
	return stats, eris.Wrap(resultRows.Err(), "postgres: result stats iterate")
}

func (s *PostgresStore) AppendEntityAttribute(ctx context.Context, attr model.EntityAttribute) (*model.EntityAttribute, error) {
	attr.ID = uuid.New().String()
	if attr.CapturedAt.IsZero() {
		attr.CapturedAt = time.Now().UTC()
	}
	if attr.Source == "" {
		attr.Source = model.AttributeSourceManual
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entity_attributes (id, project, entity_id, attr_slug, value, value_norm, source, confidence, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attr.ID, attr.Project, attr.EntityID, attr.AttrSlug, attr.Value, model.Fold(attr.Value), attr.Source, attr.Confidence, attr.CapturedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert entity attribute")
	}
	return &attr, nil
}

func (s *PostgresStore) ListEntityAttributes(ctx context.Context, entityID, attrSlug string) ([]model.EntityAttribute, error) {
	query := `SELECT id, project, entity_id, attr_slug, value, source, confidence, captured_at
	          FROM entity_attributes WHERE entity_id = $1`
	args := []any{entityID}

	if attrSlug != "" {
		query += ` AND attr_slug = $2`
		args = append(args, attrSlug)
	}
	query += ` ORDER BY captured_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entity attributes")
	}
	defer rows.Close()

	var attrs []model.EntityAttribute
	for rows.Next() {
		var a model.EntityAttribute
		if err := rows.Scan(&a.ID, &a.Project, &a.EntityID, &a.AttrSlug, &a.Value, &a.Source, &a.Confidence, &a.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity attribute")
		}
		attrs = append(attrs, a)
	}
	return attrs, eris.Wrap(rows.Err(), "postgres: list entity attributes iterate")
}

// UnmappedValues scans attribute history for raw values the vocabulary does
// not cover yet, most frequent first.
func (s *PostgresStore) UnmappedValues(ctx context.Context, project, attrSlug string) ([]UnmappedValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ea.value, COUNT(*)
		 FROM entity_attributes ea
		 WHERE ea.project = $1 AND ea.attr_slug = $2
		   AND NOT EXISTS (
		       SELECT 1 FROM feature_mappings fm
		       WHERE fm.project = ea.project AND fm.attr_slug = ea.attr_slug AND fm.raw_norm = ea.value_norm
		   )
		 GROUP BY ea.value
		 ORDER BY COUNT(*) DESC, ea.value ASC`,
		project, attrSlug,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unmapped values")
	}
	defer rows.Close()

	var values []UnmappedValue
	for rows.Next() {
		var v UnmappedValue
		if err := rows.Scan(&v.RawValue, &v.Occurrences); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unmapped value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "postgres: unmapped values iterate")
}
