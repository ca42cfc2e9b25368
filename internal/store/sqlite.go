package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/curator-cli/internal/db"
	"github.com/sells-group/curator-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Foreign keys are switched on so cascade deletes behave like the
// Postgres schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	project       TEXT NOT NULL,
	entity        TEXT,
	kind          TEXT NOT NULL DEFAULT 'extraction',
	source_type   TEXT NOT NULL,
	source_ref    TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	model         TEXT,
	cost          REAL NOT NULL DEFAULT 0,
	duration      INTEGER NOT NULL DEFAULT 0,
	result_count  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	params        TEXT,
	result        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_project_status ON jobs(project, status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);

CREATE TABLE IF NOT EXISTS extraction_results (
	id                 TEXT PRIMARY KEY,
	job_id             TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	entity_id          TEXT NOT NULL,
	attr_slug          TEXT NOT NULL,
	extracted_value    TEXT NOT NULL,
	confidence         REAL NOT NULL DEFAULT 0,
	reasoning          TEXT,
	source_evidence_id TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	reviewed_value     TEXT,
	reviewed_at        DATETIME,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_results_job_id ON extraction_results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_queue ON extraction_results(status, confidence DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS entity_attributes (
	id          TEXT PRIMARY KEY,
	project     TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	attr_slug   TEXT NOT NULL,
	value       TEXT NOT NULL,
	value_norm  TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT 'manual',
	confidence  REAL NOT NULL DEFAULT 0,
	captured_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_attributes_entity ON entity_attributes(entity_id);
CREATE INDEX IF NOT EXISTS idx_attributes_project_slug ON entity_attributes(project, attr_slug);

CREATE TABLE IF NOT EXISTS canonical_features (
	id             TEXT PRIMARY KEY,
	project        TEXT NOT NULL,
	attr_slug      TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	name_norm      TEXT NOT NULL,
	description    TEXT,
	category       TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project, attr_slug, name_norm)
);

CREATE TABLE IF NOT EXISTS feature_mappings (
	id         TEXT PRIMARY KEY,
	feature_id TEXT NOT NULL REFERENCES canonical_features(id) ON DELETE CASCADE,
	project    TEXT NOT NULL,
	attr_slug  TEXT NOT NULL,
	raw_value  TEXT NOT NULL,
	raw_norm   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project, attr_slug, raw_norm)
);

CREATE INDEX IF NOT EXISTS idx_mappings_feature_id ON feature_mappings(feature_id);

CREATE TABLE IF NOT EXISTS dimensions (
	id          TEXT PRIMARY KEY,
	project     TEXT NOT NULL,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL,
	description TEXT,
	data_type   TEXT NOT NULL DEFAULT 'text',
	enum_values TEXT,
	source      TEXT,
	ai_prompt   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project, slug)
);

CREATE TABLE IF NOT EXISTS dimension_values (
	company_id   TEXT NOT NULL,
	dimension_id TEXT NOT NULL REFERENCES dimensions(id) ON DELETE CASCADE,
	value        TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 0,
	source       TEXT,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, dimension_id)
);

CREATE INDEX IF NOT EXISTS idx_dimension_values_dimension ON dimension_values(dimension_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now().UTC()
	job.Status = model.JobStatusPending
	if job.Kind == "" {
		job.Kind = model.JobKindExtraction
	}

	var params any
	if len(job.Params) > 0 {
		params = string(job.Params)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, project, entity, kind, source_type, source_ref, status, params, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Project, job.Entity, string(job.Kind), job.SourceType, job.SourceRef, string(job.Status), params, job.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project, COALESCE(entity, ''), kind, source_type, COALESCE(source_ref, ''), status,
		        COALESCE(model, ''), cost, duration, result_count, COALESCE(error_message, ''),
		        params, result, created_at, completed_at
		 FROM jobs WHERE id = ?`,
		jobID,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", jobID)
	}
	return j, err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, jobID string, params UpdateJobParams) (bool, error) {
	var sets []string
	var args []any

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if params.Status != nil {
		add("status", string(*params.Status))
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
		add("result", string(params.Result))
	}
	if params.CompletedAt != nil {
		add("completed_at", params.CompletedAt.UTC())
	}

	if len(sets) == 0 {
		return false, eris.Errorf("sqlite: update job %s: no fields to set", jobID)
	}

	query := `UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, jobID)

	if params.Status != nil {
		// Forward-only transitions: terminal rows never change status.
		query += ` AND (CASE status WHEN 'pending' THEN 0 WHEN 'running' THEN 1 ELSE 2 END) < (CASE ? WHEN 'pending' THEN 0 WHEN 'running' THEN 1 ELSE 2 END)`
		args = append(args, string(*params.Status))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, project, COALESCE(entity, ''), kind, source_type, COALESCE(source_ref, ''), status,
	                 COALESCE(model, ''), cost, duration, result_count, COALESCE(error_message, ''),
	                 params, result, created_at, completed_at
	          FROM jobs WHERE 1=1`
	var args []any

	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Entity != "" {
		query += ` AND entity = ?`
		args = append(args, filter.Entity)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) RecordResults(ctx context.Context, results []model.ExtractionResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(results))
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range results {
			id := uuid.New().String()
			createdAt := now
			if !r.CreatedAt.IsZero() {
				createdAt = r.CreatedAt.UTC()
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO extraction_results (id, job_id, entity_id, attr_slug, extracted_value, confidence, reasoning, source_evidence_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, r.JobID, r.EntityID, r.AttrSlug, r.ExtractedValue, r.Confidence, r.Reasoning, r.SourceEvidenceID, string(model.ResultStatusPending), createdAt,
			)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return eris.Wrapf(ErrNotFound, "sqlite: job %s", r.JobID)
				}
				return eris.Wrapf(err, "sqlite: insert result for job %s", r.JobID)
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

func (s *SQLiteStore) GetResult(ctx context.Context, resultID string) (*model.ExtractionResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, entity_id, attr_slug, extracted_value, confidence,
		        COALESCE(reasoning, ''), COALESCE(source_evidence_id, ''), status,
		        reviewed_value, reviewed_at, created_at
		 FROM extraction_results WHERE id = ?`,
		resultID,
	)

	var r model.ExtractionResult
	var reviewedValue sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(&r.ID, &r.JobID, &r.EntityID, &r.AttrSlug, &r.ExtractedValue, &r.Confidence,
		&r.Reasoning, &r.SourceEvidenceID, &r.Status, &reviewedValue, &reviewedAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: result %s", resultID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", resultID)
	}
	if reviewedValue.Valid {
		r.ReviewedValue = &reviewedValue.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.ReviewedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) ReviewQueue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.job_id, r.entity_id, r.attr_slug, r.extracted_value, r.confidence,
		        COALESCE(r.reasoning, ''), COALESCE(r.source_evidence_id, ''), r.status, r.created_at,
		        j.project, j.source_type, COALESCE(j.model, '')
		 FROM extraction_results r
		 JOIN jobs j ON j.id = r.job_id
		 WHERE r.status = 'pending' AND j.project = ?
		 ORDER BY r.confidence DESC, r.created_at ASC
		 LIMIT ? OFFSET ?`,
		project, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: review queue")
	}
	defer rows.Close()

	var items []model.ReviewQueueItem
	for rows.Next() {
		var it model.ReviewQueueItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.EntityID, &it.AttrSlug, &it.ExtractedValue, &it.Confidence,
			&it.Reasoning, &it.SourceEvidenceID, &it.Status, &it.CreatedAt,
			&it.Project, &it.SourceType, &it.Model); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: review queue iterate")
}

func (s *SQLiteStore) ReviewResult(ctx context.Context, resultID string, action model.ReviewAction, editedValue *string) (bool, error) {
	applied := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		res, err := tx.ExecContext(ctx,
			`UPDATE extraction_results SET status = ?, reviewed_value = ?, reviewed_at = ? WHERE id = ? AND status = 'pending'`,
			string(action.ResultStatus()), editedValue, now, resultID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: review result %s", resultID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
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
		err = tx.QueryRowContext(ctx,
			`SELECT j.project, r.entity_id, r.attr_slug, COALESCE(r.reviewed_value, r.extracted_value), r.confidence
			 FROM extraction_results r
			 JOIN jobs j ON j.id = r.job_id
			 WHERE r.id = ?`,
			resultID,
		).Scan(&project, &entityID, &attrSlug, &value, &conf)
		if err != nil {
			return eris.Wrapf(err, "sqlite: load reviewed result %s", resultID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO entity_attributes (id, project, entity_id, attr_slug, value, value_norm, source, confidence, captured_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), project, entityID, attrSlug, value, model.Fold(value), model.AttributeSourceExtraction, conf, now,
		)
		return eris.Wrapf(err, "sqlite: apply result %s", resultID)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *SQLiteStore) PipelineStats(ctx context.Context, project string) (*PipelineStats, error) {
	stats := &PipelineStats{
		Project:         project,
		JobsByStatus:    map[string]int{},
		ResultsByStatus: map[string]int{},
	}

	jobRows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(cost), 0) FROM jobs WHERE project = ? GROUP BY status`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: job stats")
	}
	defer jobRows.Close()

	for jobRows.Next() {
		var status string
		var count int
		var cost float64
		if err := jobRows.Scan(&status, &count, &cost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job stats")
		}
		stats.JobsByStatus[status] = count
		stats.TotalCost += cost
	}
	if err := jobRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: job stats iterate")
	}

	resultRows, err := s.db.QueryContext(ctx,
		`SELECT r.status, COUNT(*)
		 FROM extraction_results r
		 JOIN jobs j ON j.id = r.job_id
		 WHERE j.project = ? GROUP BY r.status`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: result stats")
	}
	defer resultRows.Close()

	for resultRows.Next() {
		var status string
		var count int
		if err := resultRows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result stats")
		}
		stats.ResultsByStatus[status] = count
	}
	return stats, eris.Wrap(resultRows.Err(), "sqlite: result stats iterate")
}

func (s *SQLiteStore) AppendEntityAttribute(ctx context.Context, attr model.EntityAttribute) (*model.EntityAttribute, error) {
	attr.ID = uuid.New().String()
	if attr.CapturedAt.IsZero() {
		attr.CapturedAt = time.Now().UTC()
	}
	if attr.Source == "" {
		attr.Source = model.AttributeSourceManual
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_attributes (id, project, entity_id, attr_slug, value, value_norm, source, confidence, captured_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attr.ID, attr.Project, attr.EntityID, attr.AttrSlug, attr.Value, model.Fold(attr.Value), attr.Source, attr.Confidence, attr.CapturedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert entity attribute")
	}
	return &attr, nil
}

func (s *SQLiteStore) ListEntityAttributes(ctx context.Context, entityID, attrSlug string) ([]model.EntityAttribute, error) {
	query := `SELECT id, project, entity_id, attr_slug, value, source, confidence, captured_at
	          FROM entity_attributes WHERE entity_id = ?`
	args := []any{entityID}

	if attrSlug != "" {
		query += ` AND attr_slug = ?`
		args = append(args, attrSlug)
	}
	query += ` ORDER BY captured_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entity attributes")
	}
	defer rows.Close()

	var attrs []model.EntityAttribute
	for rows.Next() {
		var a model.EntityAttribute
		if err := rows.Scan(&a.ID, &a.Project, &a.EntityID, &a.AttrSlug, &a.Value, &a.Source, &a.Confidence, &a.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity attribute")
		}
		attrs = append(attrs, a)
	}
	return attrs, eris.Wrap(rows.Err(), "sqlite: list entity attributes iterate")
}

func (s *SQLiteStore) UnmappedValues(ctx context.Context, project, attrSlug string) ([]UnmappedValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ea.value, COUNT(*)
		 FROM entity_attributes ea
		 WHERE ea.project = ? AND ea.attr_slug = ?
		   AND NOT EXISTS (
		       SELECT 1 FROM feature_mappings fm
		       WHERE fm.project = ea.project AND fm.attr_slug = ea.attr_slug AND fm.raw_norm = ea.value_norm
		   )
		 GROUP BY ea.value
		 ORDER BY COUNT(*) DESC, ea.value ASC`,
		project, attrSlug,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unmapped values")
	}
	defer rows.Close()

	var values []UnmappedValue
	for rows.Next() {
		var v UnmappedValue
		if err := rows.Scan(&v.RawValue, &v.Occurrences); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unmapped value")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "sqlite: unmapped values iterate")
}

// helpers

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var params, result sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Project, &j.Entity, &j.Kind, &j.SourceType, &j.SourceRef, &j.Status,
		&j.Model, &j.Cost, &j.Duration, &j.ResultCount, &j.ErrorMessage,
		&params, &result, &j.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if params.Valid && params.String != "" {
		j.Params = json.RawMessage(params.String)
	}
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}
