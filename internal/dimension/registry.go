package dimension

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

// Store is the subset of the persistence interface the registry needs.
type Store interface {
	CreateDimension(ctx context.Context, dim model.Dimension) (*model.Dimension, error)
	GetDimension(ctx context.Context, dimensionID string) (*model.Dimension, error)
	ListDimensions(ctx context.Context, project string) ([]model.Dimension, error)
	DeleteDimension(ctx context.Context, dimensionID string) error
	SetDimensionValue(ctx context.Context, val model.DimensionValue) error
	BulkSetDimensionValues(ctx context.Context, vals []model.DimensionValue) (int, error)
}

// Registry manages project-defined scratch dimensions and their per-company
// values. Dimension values are mutable (last writer wins), unlike the
// append-only attribute history.
type Registry struct {
	store Store
}

func NewRegistry(st Store) *Registry {
	return &Registry{store: st}
}

// Create registers a new dimension. The slug is always derived from the name,
// so the same name yields the same slug and a duplicate is a conflict.
func (r *Registry) Create(ctx context.Context, dim model.Dimension) (*model.Dimension, error) {
	dim.Name = strings.TrimSpace(dim.Name)
	if dim.Project == "" || dim.Name == "" {
		return nil, eris.Wrap(model.ErrValidation, "dimension: project and name are required")
	}
	if dim.DataType == "" {
		dim.DataType = model.TypeText
	}
	if !dim.DataType.ValidForDimension() {
		return nil, eris.Wrapf(model.ErrValidation, "dimension: data type %q not allowed", dim.DataType)
	}
	if dim.DataType == model.TypeEnum && len(dim.EnumValues) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "dimension: enum dimensions need enum_values")
	}
	if dim.DataType != model.TypeEnum && len(dim.EnumValues) > 0 {
		return nil, eris.Wrap(model.ErrValidation, "dimension: enum_values require an enum data type")
	}
	dim.Slug = model.Slugify(dim.Name)

	created, err := r.store.CreateDimension(ctx, dim)
	if err != nil {
		return nil, err
	}
	zap.L().Info("dimension created",
		zap.String("project", created.Project),
		zap.String("slug", created.Slug),
		zap.String("data_type", string(created.DataType)))
	return created, nil
}

// Get loads one dimension with its live value count.
func (r *Registry) Get(ctx context.Context, dimensionID string) (*model.Dimension, error) {
	if dimensionID == "" {
		return nil, eris.Wrap(model.ErrValidation, "dimension: dimension id is required")
	}
	return r.store.GetDimension(ctx, dimensionID)
}

// List returns all dimensions of a project with live value counts.
func (r *Registry) List(ctx context.Context, project string) ([]model.Dimension, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "dimension: project is required")
	}
	return r.store.ListDimensions(ctx, project)
}

// Delete removes a dimension and all of its values. Deleting a dimension that
// is already gone is a no-op.
func (r *Registry) Delete(ctx context.Context, dimensionID string) error {
	if dimensionID == "" {
		return eris.Wrap(model.ErrValidation, "dimension: dimension id is required")
	}
	return r.store.DeleteDimension(ctx, dimensionID)
}

// SetValue upserts one company's value for a dimension. The value is
// validated against the dimension's declared data type before writing.
func (r *Registry) SetValue(ctx context.Context, val model.DimensionValue) error {
	val.CompanyID = strings.TrimSpace(val.CompanyID)
	if val.CompanyID == "" || val.DimensionID == "" {
		return eris.Wrap(model.ErrValidation, "dimension: company id and dimension id are required")
	}
	if val.Confidence < 0 || val.Confidence > 1 {
		return eris.Wrapf(model.ErrValidation, "dimension: confidence %v out of range", val.Confidence)
	}

	dim, err := r.store.GetDimension(ctx, val.DimensionID)
	if err != nil {
		return err
	}
	encoded, err := encodeForDimension(dim, val.Value)
	if err != nil {
		return err
	}
	val.Value = encoded

	return r.store.SetDimensionValue(ctx, val)
}

// BulkSetValues upserts a batch of company values for one dimension in a
// single transaction. Entries naming the same company collapse to the last
// one, preserving the upsert's last-writer-wins contract within the batch.
func (r *Registry) BulkSetValues(ctx context.Context, dimensionID string, vals []model.DimensionValue) (int, error) {
	if dimensionID == "" {
		return 0, eris.Wrap(model.ErrValidation, "dimension: dimension id is required")
	}
	if len(vals) == 0 {
		return 0, nil
	}

	dim, err := r.store.GetDimension(ctx, dimensionID)
	if err != nil {
		return 0, err
	}

	byCompany := make(map[string]int, len(vals))
	batch := make([]model.DimensionValue, 0, len(vals))
	for _, v := range vals {
		v.CompanyID = strings.TrimSpace(v.CompanyID)
		if v.CompanyID == "" {
			return 0, eris.Wrap(model.ErrValidation, "dimension: company id is required")
		}
		if v.Confidence < 0 || v.Confidence > 1 {
			return 0, eris.Wrapf(model.ErrValidation, "dimension: confidence %v out of range", v.Confidence)
		}
		encoded, err := encodeForDimension(dim, v.Value)
		if err != nil {
			return 0, err
		}
		v.Value = encoded
		v.DimensionID = dimensionID

		if i, ok := byCompany[v.CompanyID]; ok {
			batch[i] = v
			continue
		}
		byCompany[v.CompanyID] = len(batch)
		batch = append(batch, v)
	}

	n, err := r.store.BulkSetDimensionValues(ctx, batch)
	if err != nil {
		return 0, err
	}
	zap.L().Info("dimension values set",
		zap.String("dimension", dim.Slug),
		zap.Int("count", n))
	return n, nil
}

func encodeForDimension(dim *model.Dimension, raw string) (string, error) {
	encoded, err := model.EncodeValue(dim.DataType, strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if dim.DataType == model.TypeEnum && !slices.Contains(dim.EnumValues, encoded) {
		return "", eris.Wrapf(model.ErrValidation, "dimension %s: %q is not one of %v", dim.Slug, encoded, dim.EnumValues)
	}
	return encoded, nil
}
