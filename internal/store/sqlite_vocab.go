package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/db"
	"github.com/sells-group/curator-cli/internal/model"
)

func (s *SQLiteStore) CreateFeature(ctx context.Context, feature model.CanonicalFeature) (*model.CanonicalFeature, error) {
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

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO canonical_features (id, project, attr_slug, canonical_name, name_norm, description, category, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			feature.ID, feature.Project, feature.AttrSlug, feature.CanonicalName, model.Fold(feature.CanonicalName),
			feature.Description, feature.Category, feature.CreatedAt,
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return eris.Wrapf(ErrConflict, "sqlite: feature %q in %s/%s", feature.CanonicalName, feature.Project, feature.AttrSlug)
			}
			return eris.Wrap(err, "sqlite: insert feature")
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
			_, err := tx.ExecContext(ctx,
				`INSERT INTO feature_mappings (id, feature_id, project, attr_slug, raw_value, raw_norm, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.FeatureID, m.Project, m.AttrSlug, m.RawValue, model.Fold(m.RawValue), m.CreatedAt,
			)
			if err != nil {
				if db.IsUniqueViolation(err) {
					return eris.Wrapf(ErrConflict, "sqlite: raw value %q in %s/%s", raw, feature.Project, feature.AttrSlug)
				}
				return eris.Wrap(err, "sqlite: insert mapping")
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

func (s *SQLiteStore) GetFeature(ctx context.Context, featureID string) (*model.CanonicalFeature, error) {
	var f model.CanonicalFeature

	err := s.db.QueryRowContext(ctx,
		`SELECT id, project, attr_slug, canonical_name, COALESCE(description, ''), COALESCE(category, ''), created_at
		 FROM canonical_features WHERE id = ?`,
		featureID,
	).Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: feature %s", featureID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get feature %s", featureID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feature_id, project, attr_slug, raw_value, created_at
		 FROM feature_mappings WHERE feature_id = ?
		 ORDER BY created_at ASC, raw_value ASC`,
		featureID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	for rows.Next() {
		var m model.FeatureMapping
		if err := rows.Scan(&m.ID, &m.FeatureID, &m.Project, &m.AttrSlug, &m.RawValue, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		f.Mappings = append(f.Mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings iterate")
	}
	return &f, nil
}

func (s *SQLiteStore) ListFeatures(ctx context.Context, project, attrSlug string) ([]model.CanonicalFeature, error) {
	query := `SELECT id, project, attr_slug, canonical_name, COALESCE(description, ''), COALESCE(category, ''), created_at
	          FROM canonical_features WHERE project = ?`
	args := []any{project}

	if attrSlug != "" {
		query += ` AND attr_slug = ?`
		args = append(args, attrSlug)
	}
	query += ` ORDER BY canonical_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list features")
	}
	defer rows.Close()

	var features []model.CanonicalFeature
	for rows.Next() {
		var f model.CanonicalFeature
		if err := rows.Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature")
		}
		features = append(features, f)
	}
	return features, eris.Wrap(rows.Err(), "sqlite: list features iterate")
}

func (s *SQLiteStore) AddMapping(ctx context.Context, mapping model.FeatureMapping) (*model.FeatureMapping, error) {
	err := s.db.QueryRowContext(ctx,
		`SELECT project, attr_slug FROM canonical_features WHERE id = ?`,
		mapping.FeatureID,
	).Scan(&mapping.Project, &mapping.AttrSlug)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: feature %s", mapping.FeatureID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get feature %s", mapping.FeatureID)
	}

	mapping.ID = uuid.New().String()
	mapping.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feature_mappings (id, feature_id, project, attr_slug, raw_value, raw_norm, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mapping.ID, mapping.FeatureID, mapping.Project, mapping.AttrSlug, mapping.RawValue, model.Fold(mapping.RawValue), mapping.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "sqlite: raw value %q in %s/%s", mapping.RawValue, mapping.Project, mapping.AttrSlug)
		}
		return nil, eris.Wrap(err, "sqlite: insert mapping")
	}
	return &mapping, nil
}

func (s *SQLiteStore) RemoveMapping(ctx context.Context, mappingID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feature_mappings WHERE id = ?`, mappingID)
	return eris.Wrapf(err, "sqlite: remove mapping %s", mappingID)
}

func (s *SQLiteStore) MergeFeatures(ctx context.Context, targetID string, sourceIDs []string) (int, error) {
	moved := 0

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var project, attrSlug string
		err := tx.QueryRowContext(ctx,
			`SELECT project, attr_slug FROM canonical_features WHERE id = ?`,
			targetID,
		).Scan(&project, &attrSlug)
		if err == sql.ErrNoRows {
			return eris.Wrapf(ErrNotFound, "sqlite: feature %s", targetID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: get merge target %s", targetID)
		}

		for _, sourceID := range sourceIDs {
			if sourceID == targetID {
				continue
			}

			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM canonical_features WHERE id = ?)`,
				sourceID,
			).Scan(&exists)
			if err != nil {
				return eris.Wrapf(err, "sqlite: check merge source %s", sourceID)
			}
			if !exists {
				return eris.Wrapf(ErrNotFound, "sqlite: feature %s", sourceID)
			}

			res, err := tx.ExecContext(ctx,
				`UPDATE feature_mappings SET feature_id = ?, project = ?, attr_slug = ?
				 WHERE feature_id = ?
				   AND NOT EXISTS (
				       SELECT 1 FROM feature_mappings other
				       WHERE other.project = ? AND other.attr_slug = ?
				         AND other.raw_norm = feature_mappings.raw_norm
				         AND other.id <> feature_mappings.id
				   )`,
				targetID, project, attrSlug, sourceID, project, attrSlug,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: move mappings from %s", sourceID)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return eris.Wrap(err, "sqlite: rows affected")
			}
			moved += int(n)

			if _, err := tx.ExecContext(ctx, `DELETE FROM feature_mappings WHERE feature_id = ?`, sourceID); err != nil {
				return eris.Wrapf(err, "sqlite: drop remaining mappings of %s", sourceID)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM canonical_features WHERE id = ?`, sourceID); err != nil {
				return eris.Wrapf(err, "sqlite: delete merged feature %s", sourceID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func (s *SQLiteStore) ResolveMapping(ctx context.Context, project, attrSlug, rawValue string) (*model.CanonicalFeature, error) {
	var f model.CanonicalFeature

	err := s.db.QueryRowContext(ctx,
		`SELECT f.id, f.project, f.attr_slug, f.canonical_name, COALESCE(f.description, ''), COALESCE(f.category, ''), f.created_at
		 FROM feature_mappings m
		 JOIN canonical_features f ON f.id = m.feature_id
		 WHERE m.project = ? AND m.attr_slug = ? AND m.raw_norm = ?`,
		project, attrSlug, model.Fold(rawValue),
	).Scan(&f.ID, &f.Project, &f.AttrSlug, &f.CanonicalName, &f.Description, &f.Category, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: resolve mapping")
	}
	return &f, nil
}

func (s *SQLiteStore) VocabStats(ctx context.Context, project string) ([]VocabStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.attr_slug, COUNT(DISTINCT f.id), COUNT(m.id)
		 FROM canonical_features f
		 LEFT JOIN feature_mappings m ON m.feature_id = f.id
		 WHERE f.project = ?
		 GROUP BY f.attr_slug
		 ORDER BY f.attr_slug ASC`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: vocab stats")
	}
	defer rows.Close()

	var stats []VocabStat
	for rows.Next() {
		var st VocabStat
		if err := rows.Scan(&st.AttrSlug, &st.FeatureCount, &st.MappingCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vocab stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: vocab stats iterate")
}

func (s *SQLiteStore) CreateDimension(ctx context.Context, dim model.Dimension) (*model.Dimension, error) {
	dim.ID = uuid.New().String()
	dim.CreatedAt = time.Now().UTC()

	var enumArg any
	if len(dim.EnumValues) > 0 {
		enumJSON, err := json.Marshal(dim.EnumValues)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal enum values")
		}
		enumArg = string(enumJSON)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dimensions (id, project, name, slug, description, data_type, enum_values, source, ai_prompt, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dim.ID, dim.Project, dim.Name, dim.Slug, dim.Description, string(dim.DataType), enumArg, dim.Source, dim.AIPrompt, dim.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "sqlite: dimension %q in %s", dim.Slug, dim.Project)
		}
		return nil, eris.Wrap(err, "sqlite: insert dimension")
	}
	return &dim, nil
}

func (s *SQLiteStore) GetDimension(ctx context.Context, dimensionID string) (*model.Dimension, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT d.id, d.project, d.name, d.slug, COALESCE(d.description, ''), d.data_type, d.enum_values,
		        COALESCE(d.source, ''), COALESCE(d.ai_prompt, ''), d.created_at,
		        (SELECT COUNT(*) FROM dimension_values v WHERE v.dimension_id = d.id)
		 FROM dimensions d WHERE d.id = ?`,
		dimensionID,
	)
	d, err := scanDimension(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: dimension %s", dimensionID)
	}
	return d, err
}

func (s *SQLiteStore) ListDimensions(ctx context.Context, project string) ([]model.Dimension, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.project, d.name, d.slug, COALESCE(d.description, ''), d.data_type, d.enum_values,
		        COALESCE(d.source, ''), COALESCE(d.ai_prompt, ''), d.created_at,
		        (SELECT COUNT(*) FROM dimension_values v WHERE v.dimension_id = d.id)
		 FROM dimensions d WHERE d.project = ?
		 ORDER BY d.name ASC`,
		project,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dimensions")
	}
	defer rows.Close()

	var dims []model.Dimension
	for rows.Next() {
		d, err := scanDimension(rows)
		if err != nil {
			return nil, err
		}
		dims = append(dims, *d)
	}
	return dims, eris.Wrap(rows.Err(), "sqlite: list dimensions iterate")
}

func (s *SQLiteStore) DeleteDimension(ctx context.Context, dimensionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dimension_values WHERE dimension_id = ?`, dimensionID); err != nil {
			return eris.Wrapf(err, "sqlite: delete dimension values %s", dimensionID)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM dimensions WHERE id = ?`, dimensionID)
		return eris.Wrapf(err, "sqlite: delete dimension %s", dimensionID)
	})
}

func (s *SQLiteStore) SetDimensionValue(ctx context.Context, val model.DimensionValue) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dimension_values (company_id, dimension_id, value, confidence, source, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, dimension_id) DO UPDATE SET value = excluded.value, confidence = excluded.confidence, source = excluded.source, updated_at = excluded.updated_at`,
		val.CompanyID, val.DimensionID, val.Value, val.Confidence, val.Source, now,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return eris.Wrapf(ErrNotFound, "sqlite: dimension %s", val.DimensionID)
		}
		return eris.Wrap(err, "sqlite: set dimension value")
	}
	return nil
}

func (s *SQLiteStore) BulkSetDimensionValues(ctx context.Context, vals []model.DimensionValue) (int, error) {
	if len(vals) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	count := 0

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, v := range vals {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO dimension_values (company_id, dimension_id, value, confidence, source, updated_at) VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (company_id, dimension_id) DO UPDATE SET value = excluded.value, confidence = excluded.confidence, source = excluded.source, updated_at = excluded.updated_at`,
				v.CompanyID, v.DimensionID, v.Value, v.Confidence, v.Source, now,
			)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return eris.Wrapf(ErrNotFound, "sqlite: dimension %s", v.DimensionID)
				}
				return eris.Wrap(err, "sqlite: bulk set dimension value")
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanDimension(row scannable) (*model.Dimension, error) {
	var d model.Dimension
	var enumValues sql.NullString

	err := row.Scan(&d.ID, &d.Project, &d.Name, &d.Slug, &d.Description, &d.DataType, &enumValues,
		&d.Source, &d.AIPrompt, &d.CreatedAt, &d.ValueCount)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan dimension")
	}

	if enumValues.Valid && enumValues.String != "" {
		if err := json.Unmarshal([]byte(enumValues.String), &d.EnumValues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal enum values")
		}
	}
	return &d, nil
}
