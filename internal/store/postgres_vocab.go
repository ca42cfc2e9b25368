package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/db"
	"github.com/sells-group/curator-cli/internal/model"
)

// CreateFeature inserts the feature, its implicit self-mapping, and any extra
// raw values supplied on the input, all in one transaction. A canonical name
// or raw value already taken in the (project, attr_slug) scope rolls the
// whole call back with ErrConflict.
func (s *PostgresStore) CreateFeature(ctx context.Context, feature model.CanonicalFeature) (*model.CanonicalFeature, error) {
	feature.ID = uuid.New().String()
	feature.CreatedAt = time.Now().UTC()

	rawValues := []string{feature.CanonicalName}
	seen := map[string]bool{model.Fold(feature.CanonicalName): true}
	for _, m := range feature.Mappings {
		norm := model.Fold(m.RawValue)
		if m.RawValue == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		rawValues = append(rawValues, m.RawValue)
	}

	var mappings []model.FeatureMapping

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO canonical_features (id, project, attr_slug, canonical_name, name_norm, description, category, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			feature.ID, feature.Project, feature.AttrSlug, feature.CanonicalName, model.Fold(feature.CanonicalName),
			feature.Description, feature.Category, feature.CreatedAt,
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return eris.Wrapf(ErrConflict, "postgres: feature %q in %s/%s", feature.CanonicalName, feature.Project, feature.AttrSlug)
			}
			return eris.Wrap(err, "postgres: insert feature")
		}

		for _, raw := range rawValues {
			m := model.FeatureMapping{
				ID:        uuid.New().String(),
				FeatureID: feature.ID,
				Project:   feature.Project,
				AttrSlug:  feature.AttrSlug,
				RawValue:  raw,
				CreatedAt: feature.CreatedAt,
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO feature_mappings (id, feature_id, project, attr_slug, raw_value, raw_norm, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				m.ID, m.FeatureID, m.Project, m.AttrSlug, m.RawValue, model.Fold(m.RawValue), m.CreatedAt,
			)
			if err != nil {
				if db.IsUniqueViolation(err) {
					return eris.Wrapf(ErrConflict, "postgres: raw value %q in %s/%s", raw, feature.Project, feature.AttrSlug)
				}
				return eris.Wrap(err, "postgres: insert mapping")
			}
			mappings = append(mappings, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	feature.Mappings = mappings
	return &feature, nil
}

func (s *PostgresStore) GetFeature(ctx context.Context, featureID string) (*model.CanonicalFeature, error) {
	var f model.CanonicalFeature

	err := s.pool.QueryRow(ctx,
		`SELECT id, project, attr_slug, canonical_name, COALESCE(description, ''), COALESCE(category, ''), created_at
		 FROM canonical_features WHERE id = $1`,
		featureID,
	).Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: feature %s", featureID)
		}
		return nil, eris.Wrapf(err, "postgres: get feature %s", featureID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, feature_id, project, attr_slug, raw_value, created_at
		 FROM feature_mappings WHERE feature_id = $1
		 ORDER BY created_at ASC, raw_value ASC`,
		featureID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	for rows.Next() {
		var m model.FeatureMapping
		if err := rows.Scan(&m.ID, &m.FeatureID, &m.Project, &m.AttrSlug, &m.RawValue, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		f.Mappings = append(f.Mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings iterate")
	}
	return &f, nil
}

func (s *PostgresStore) ListFeatures(ctx context.Context, project, attrSlug string) ([]model.CanonicalFeature, error) {
	query := `SELECT id, project, attr_slug, canonical_name, COALESCE(description, ''), COALESCE(category, ''), created_at
	          FROM canonical_features WHERE project = $1`
	args := []any{project}
	argIdx := 2

	if attrSlug != "" {
		query += fmt.Sprintf(` AND attr_slug = $%d`, argIdx)
		args = append(args, attrSlug)
		argIdx++
	}
	query += ` ORDER BY canonical_name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list features")
	}
	defer rows.Close()

	var features []model.CanonicalFeature
	for rows.Next() {
		var f model.CanonicalFeature
		if err := rows.Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feature")
		}
		features = append(features, f)
	}
	return features, eris.Wrap(rows.Err(), "postgres: list features iterate")
}

func (s *PostgresStore) AddMapping(ctx context.Context, mapping model.FeatureMapping) (*model.FeatureMapping, error) {
	err := s.pool.QueryRow(ctx,
		`SELECT project, attr_slug FROM canonical_features WHERE id = $1`,
		mapping.FeatureID,
	).Scan(&mapping.Project, &mapping.AttrSlug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: feature %s", mapping.FeatureID)
		}
		return nil, eris.Wrapf(err, "postgres: get feature %s", mapping.FeatureID)
	}

	mapping.ID = uuid.New().String()
	mapping.CreatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO feature_mappings (id, feature_id, project, attr_slug, raw_value, raw_norm, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mapping.ID, mapping.FeatureID, mapping.Project, mapping.AttrSlug, mapping.RawValue, model.Fold(mapping.RawValue), mapping.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "postgres: raw value %q in %s/%s", mapping.RawValue, mapping.Project, mapping.AttrSlug)
		}
		return nil, eris.Wrap(err, "postgres: insert mapping")
	}
	return &mapping, nil
}

// RemoveMapping deletes a mapping; deleting an id that is already gone is
// a success.
func (s *PostgresStore) RemoveMapping(ctx context.Context, mappingID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM feature_mappings WHERE id = $1`, mappingID)
	return eris.Wrapf(err, "postgres: remove mapping %s", mappingID)
}

// MergeFeatures moves every mapping owned by each source onto the target,
// dropping any that would collide with a mapping already in the target's
// scope, then deletes the sources. One transaction: all sources merge or
// none do.
func (s *PostgresStore) MergeFeatures(ctx context.Context, targetID string, sourceIDs []string) (int, error) {
	moved := 0

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var project, attrSlug string
		err := tx.QueryRow(ctx,
			`SELECT project, attr_slug FROM canonical_features WHERE id = $1`,
			targetID,
		).Scan(&project, &attrSlug)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "postgres: feature %s", targetID)
			}
			return eris.Wrapf(err, "postgres: get merge target %s", targetID)
		}

		for _, sourceID := range sourceIDs {
			if sourceID == targetID {
				continue
			}

			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM canonical_features WHERE id = $1)`,
				sourceID,
			).Scan(&exists)
			if err != nil {
				return eris.Wrapf(err, "postgres: check merge source %s", sourceID)
			}
			if !exists {
				return eris.Wrapf(ErrNotFound, "postgres: feature %s", sourceID)
			}

			// Moved mappings adopt the target's scope. A mapping whose
			// raw_norm is already taken there stays behind and is deleted
			// with the source.
			tag, err := tx.Exec(ctx,
				`UPDATE feature_mappings SET feature_id = $1, project = $2, attr_slug = $3
				 WHERE feature_id = $4
				   AND NOT EXISTS (
				       SELECT 1 FROM feature_mappings other
				       WHERE other.project = $2 AND other.attr_slug = $3
				         AND other.raw_norm = feature_mappings.raw_norm
				         AND other.id <> feature_mappings.id
				   )`,
				targetID, project, attrSlug, sourceID,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: move mappings from %s", sourceID)
			}
			moved += int(tag.RowsAffected())

			if _, err := tx.Exec(ctx, `DELETE FROM feature_mappings WHERE feature_id = $1`, sourceID); err != nil {
				return eris.Wrapf(err, "postgres: drop remaining mappings of %s", sourceID)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM canonical_features WHERE id = $1`, sourceID); err != nil {
				return eris.Wrapf(err, "postgres: delete merged feature %s", sourceID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// ResolveMapping looks up a raw value by exact, case-insensitive match.
// A miss returns (nil, nil), not an error.
func (s *PostgresStore) ResolveMapping(ctx context.Context, project, attrSlug, rawValue string) (*model.CanonicalFeature, error) {
	var f model.CanonicalFeature

	err := s.pool.QueryRow(ctx,
		`SELECT f.id, f.project, f.attr_slug, f.canonical_name, COALESCE(f.description, ''), COALESCE(f.category, ''), f.created_at FROM feature_mappings m JOIN canonical_features f ON f.id = m.feature_id WHERE m.project = $1 AND m.attr_slug = $2 AND m.raw_norm = $3`,
		project, attrSlug, model.Fold(rawValue),
	).Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: resolve mapping")
	}
	return &f, nil
}

func (s *PostgresStore) VocabStats(ctx context.Context, project string) ([]VocabStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.attr_slug, COUNT(DISTINCT f.id), COUNT(m.id)
		 FROM canonical_features f
		 LEFT JOIN feature_mappings m ON m.feature_id = f.id
		 WHERE f.project = $1
		 GROUP BY f.attr_slug
		 ORDER BY f.attr_slug ASC`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: vocab stats")
	}
	defer rows.Close()

	var stats []VocabStat
	for rows.Next() {
		var st VocabStat
		if err := rows.Scan(&st.AttrSlug, &st.FeatureCount, &st.MappingCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vocab stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: vocab stats iterate")
}

func (s *PostgresStore) CreateDimension(ctx context.Context, dim model.Dimension) (*model.Dimension, error) {
	dim.ID = uuid.New().String()
	dim.CreatedAt = time.Now().UTC()

	var enumJSON []byte
	if len(dim.EnumValues) > 0 {
		var err error
		enumJSON, err = json.Marshal(dim.EnumValues)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal enum values")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dimensions (id, project, name, slug, description, data_type, enum_values, source, ai_prompt, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		dim.ID, dim.Project, dim.Name, dim.Slug, dim.Description, string(dim.DataType), enumJSON, dim.Source, dim.AIPrompt, dim.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "postgres: dimension %q in %s", dim.Slug, dim.Project)
		}
		return nil, eris.Wrap(err, "postgres: insert dimension")
	}
	return &dim, nil
}

func (s *PostgresStore) GetDimension(ctx context.Context, dimensionID string) (*model.Dimension, error) {
	var d model.Dimension
	var enumNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT d.id, d.project, d.name, d.slug, COALESCE(d.description, ''), d.data_type, d.enum_values,
		        COALESCE(d.source, ''), COALESCE(d.ai_prompt, ''), d.created_at,
		        (SELECT COUNT(*) FROM dimension_values v WHERE v.dimension_id = d.id)
		 FROM dimensions d WHERE d.id = $1`,
		dimensionID,
	).Scan(&d.ID, &d.Project, &d.Name, &d.Slug, &d.Description, &d.DataType, &enumNull,
		&d.Source, &d.AIPrompt, &d.CreatedAt, &d.ValueCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: dimension %s", dimensionID)
		}
		return nil, eris.Wrapf(err, "postgres: get dimension %s", dimensionID)
	}
	if enumNull != nil {
		if err := json.Unmarshal(*enumNull, &d.EnumValues); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal enum values")
		}
	}
	return &d, nil
}

func (s *PostgresStore) ListDimensions(ctx context.Context, project string) ([]model.Dimension, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.project, d.name, d.slug, COALESCE(d.description, ''), d.data_type, d.enum_values,
		        COALESCE(d.source, ''), COALESCE(d.ai_prompt, ''), d.created_at,
		        (SELECT COUNT(*) FROM dimension_values v WHERE v.dimension_id = d.id)
		 FROM dimensions d WHERE d.project = $1
		 ORDER BY d.name ASC`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dimensions")
	}
	defer rows.Close()

	var dims []model.Dimension
	for rows.Next() {
		var d model.Dimension
		var enumNull *[]byte
		if err := rows.Scan(&d.ID, &d.Project, &d.Name, &d.Slug, &d.Description, &d.DataType, &enumNull,
			&d.Source, &d.AIPrompt, &d.CreatedAt, &d.ValueCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dimension")
		}
		if enumNull != nil {
			if err := json.Unmarshal(*enumNull, &d.EnumValues); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal enum values")
			}
		}
		dims = append(dims, d)
	}
	return dims, eris.Wrap(rows.Err(), "postgres: list dimensions iterate")
}

// DeleteDimension removes a dimension and its values; deleting an unknown id
// is a success.
func (s *PostgresStore) DeleteDimension(ctx context.Context, dimensionID string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM dimension_values WHERE dimension_id = $1`, dimensionID); err != nil {
			return eris.Wrapf(err, "postgres: delete dimension values %s", dimensionID)
		}
		_, err := tx.Exec(ctx, `DELETE FROM dimensions WHERE id = $1`, dimensionID)
		return eris.Wrapf(err, "postgres: delete dimension %s", dimensionID)
	})
}

func (s *PostgresStore) SetDimensionValue(ctx context.Context, val model.DimensionValue) error {
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dimension_values (company_id, dimension_id, value, confidence, source, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (company_id, dimension_id) DO UPDATE SET value = $3, confidence = $4, source = $5, updated_at = $6`,
		val.CompanyID, val.DimensionID, val.Value, val.Confidence, val.Source, now,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return eris.Wrapf(ErrNotFound, "postgres: dimension %s", val.DimensionID)
		}
		return eris.Wrap(err, "postgres: set dimension value")
	}
	return nil
}

// BulkSetDimensionValues upserts a batch through a temp table and COPY.
// Callers must have deduplicated (company_id, dimension_id) pairs; the
// ON CONFLICT clause cannot touch the same row twice in one statement.
func (s *PostgresStore) BulkSetDimensionValues(ctx context.Context, vals []model.DimensionValue) (int, error) {
	if len(vals) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(vals))
	for _, v := range vals {
		rows = append(rows, []any{v.CompanyID, v.DimensionID, v.Value, v.Confidence, v.Source, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertSpec{
		Table:   "dimension_values",
		Columns: []string{"company_id", "dimension_id", "value", "confidence", "source", "updated_at"},
		Key:     []string{"company_id", "dimension_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk set dimension values")
	}
	return int(n), nil
}
