// Package attribute exposes the append-only entity attribute history:
// manual observations go in through Append, review acceptance inserts rows
// directly in the store, and History reads both back.
package attribute

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/registry"
)

// Store is the subset of the persistence interface the service needs.
type Store interface {
	AppendEntityAttribute(ctx context.Context, attr model.EntityAttribute) (*model.EntityAttribute, error)
	ListEntityAttributes(ctx context.Context, entityID, attrSlug string) ([]model.EntityAttribute, error)
}

// Service records and lists entity attribute observations. Rows are only
// ever appended; history is never rewritten.
type Service struct {
	store Store
	attrs *registry.AttributeRegistry
}

// NewService builds a Service encoding values against the given attribute
// registry. A nil registry falls back to the built-in attribute set.
func NewService(st Store, attrs *registry.AttributeRegistry) *Service {
	if attrs == nil {
		attrs = registry.DefaultAttributes()
	}
	return &Service{store: st, attrs: attrs}
}

// Append inserts one manual observation. The value is encoded per the
// attribute's declared data type; slugs outside the registry are stored as
// text. An empty source defaults to "manual" in the store.
func (s *Service) Append(ctx context.Context, attr model.EntityAttribute) (*model.EntityAttribute, error) {
	attr.EntityID = strings.TrimSpace(attr.EntityID)
	if attr.Project == "" || attr.EntityID == "" || attr.AttrSlug == "" {
		return nil, eris.Wrap(model.ErrValidation, "attribute: project, entity_id and attr_slug are required")
	}
	if strings.TrimSpace(attr.Value) == "" {
		return nil, eris.Wrap(model.ErrValidation, "attribute: value is required")
	}
	if attr.Confidence < 0 || attr.Confidence > 1 {
		return nil, eris.Wrapf(model.ErrValidation, "attribute: confidence %v out of range", attr.Confidence)
	}

	dt := model.TypeText
	if def := s.attrs.BySlug(attr.AttrSlug); def != nil {
		dt = def.DataType
	}
	encoded, err := model.EncodeValue(dt, attr.Value)
	if err != nil {
		return nil, eris.Wrapf(err, "attribute: %s", attr.AttrSlug)
	}
	attr.Value = encoded

	created, err := s.store.AppendEntityAttribute(ctx, attr)
	if err != nil {
		return nil, err
	}
	zap.L().Info("attribute observed",
		zap.String("entity_id", created.EntityID),
		zap.String("attr_slug", created.AttrSlug),
		zap.String("source", created.Source))
	return created, nil
}

// History lists all observations for an entity in capture order, optionally
// narrowed to one attribute.
func (s *Service) History(ctx context.Context, entityID, attrSlug string) ([]model.EntityAttribute, error) {
	if entityID == "" {
		return nil, eris.Wrap(model.ErrValidation, "attribute: entity id is required")
	}
	return s.store.ListEntityAttributes(ctx, entityID, attrSlug)
}
