package vocabulary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

const (
	defaultSuggestModel = "claude-haiku-4-5-20251001"
	suggestMaxTokens    = 2048
)

// Store is the subset of the persistence interface the normalizer needs.
type Store interface {
	CreateFeature(ctx context.Context, feature model.CanonicalFeature) (*model.CanonicalFeature, error)
	GetFeature(ctx context.Context, featureID string) (*model.CanonicalFeature, error)
	ListFeatures(ctx context.Context, project, attrSlug string) ([]model.CanonicalFeature, error)
	AddMapping(ctx context.Context, mapping model.FeatureMapping) (*model.FeatureMapping, error)
	RemoveMapping(ctx context.Context, mappingID string) error
	MergeFeatures(ctx context.Context, targetID string, sourceIDs []string) (int, error)
	ResolveMapping(ctx context.Context, project, attrSlug, rawValue string) (*model.CanonicalFeature, error)
	VocabStats(ctx context.Context, project string) ([]store.VocabStat, error)
	UnmappedValues(ctx context.Context, project, attrSlug string) ([]store.UnmappedValue, error)
}

// Normalizer curates the canonical vocabulary for each (project, attr_slug)
// scope: raw extracted values are mapped onto canonical features so the same
// concept never appears under two spellings.
type Normalizer struct {
	store        Store
	client       anthropic.Client
	suggestModel string
}

// NewNormalizer returns a Normalizer backed by the given store. The client is
// only used by Suggest and may be nil when suggestions are not needed.
func NewNormalizer(st Store, client anthropic.Client, suggestModel string) *Normalizer {
	if suggestModel == "" {
		suggestModel = defaultSuggestModel
	}
	return &Normalizer{store: st, client: client, suggestModel: suggestModel}
}

// Normalize reports the comparison form of a raw value: case-folded with
// interior whitespace collapsed. Two values with the same normalized form are
// the same vocabulary entry.
func Normalize(s string) string {
	return model.Fold(s)
}

// CreateFeature registers a new canonical feature. The store also records the
// self-mapping and any extra mappings carried on the feature.
func (n *Normalizer) CreateFeature(ctx context.Context, feature model.CanonicalFeature) (*model.CanonicalFeature, error) {
	feature.CanonicalName = strings.TrimSpace(feature.CanonicalName)
	if feature.Project == "" || feature.AttrSlug == "" || feature.CanonicalName == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project, attr_slug and canonical_name are required")
	}
	created, err := n.store.CreateFeature(ctx, feature)
	if err != nil {
		return nil, err
	}
	zap.L().Info("canonical feature created",
		zap.String("project", created.Project),
		zap.String("attr_slug", created.AttrSlug),
		zap.String("name", created.CanonicalName))
	return created, nil
}

// GetFeature loads one feature with its mappings.
func (n *Normalizer) GetFeature(ctx context.Context, featureID string) (*model.CanonicalFeature, error) {
	if featureID == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: feature id is required")
	}
	return n.store.GetFeature(ctx, featureID)
}

// ListFeatures lists the vocabulary for a project, optionally scoped to one
// attribute, ordered by canonical name.
func (n *Normalizer) ListFeatures(ctx context.Context, project, attrSlug string) ([]model.CanonicalFeature, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project is required")
	}
	return n.store.ListFeatures(ctx, project, attrSlug)
}

// AddMapping attaches a raw value to an existing feature.
func (n *Normalizer) AddMapping(ctx context.Context, featureID, rawValue string) (*model.FeatureMapping, error) {
	rawValue = strings.TrimSpace(rawValue)
	if featureID == "" || rawValue == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: feature id and raw value are required")
	}
	return n.store.AddMapping(ctx, model.FeatureMapping{FeatureID: featureID, RawValue: rawValue})
}

// RemoveMapping detaches a raw value from its feature. Removing a mapping that
// does not exist is a no-op.
func (n *Normalizer) RemoveMapping(ctx context.Context, mappingID string) error {
	if mappingID == "" {
		return eris.Wrap(model.ErrValidation, "vocabulary: mapping id is required")
	}
	return n.store.RemoveMapping(ctx, mappingID)
}

// Merge folds the source features into the target: mappings move to the
// target (colliding raw values are dropped) and the sources are deleted, all
// in one transaction. Returns the number of mappings moved.
func (n *Normalizer) Merge(ctx context.Context, targetID string, sourceIDs []string) (int, error) {
	if targetID == "" {
		return 0, eris.Wrap(model.ErrValidation, "vocabulary: merge target is required")
	}

	seen := make(map[string]bool, len(sourceIDs))
	sources := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == "" || seen[id] {
			continue
		}
		if id == targetID {
			return 0, eris.Wrap(model.ErrValidation, "vocabulary: merge target cannot be one of its sources")
		}
		seen[id] = true
		sources = append(sources, id)
	}
	if len(sources) == 0 {
		return 0, eris.Wrap(model.ErrValidation, "vocabulary: at least one merge source is required")
	}

	moved, err := n.store.MergeFeatures(ctx, targetID, sources)
	if err != nil {
		return 0, err
	}
	zap.L().Info("features merged",
		zap.String("target", targetID),
		zap.Int("sources", len(sources)),
		zap.Int("mappings_moved", moved))
	return moved, nil
}

// Resolve looks up the canonical feature for a raw value. A miss is not an
// error: it returns (nil, nil) so callers can distinguish "unmapped" from
// failure.
func (n *Normalizer) Resolve(ctx context.Context, project, attrSlug, rawValue string) (*model.CanonicalFeature, error) {
	if project == "" || attrSlug == "" || strings.TrimSpace(rawValue) == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project, attr_slug and raw value are required")
	}
	return n.store.ResolveMapping(ctx, project, attrSlug, rawValue)
}

// FindUnmapped reports observed attribute values that no mapping covers yet,
// most frequent first.
func (n *Normalizer) FindUnmapped(ctx context.Context, project, attrSlug string) ([]store.UnmappedValue, error) {
	if project == "" || attrSlug == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project and attr_slug are required")
	}
	return n.store.UnmappedValues(ctx, project, attrSlug)
}

// Stats summarizes vocabulary size per attribute for a project.
func (n *Normalizer) Stats(ctx context.Context, project string) ([]store.VocabStat, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project is required")
	}
	return n.store.VocabStats(ctx, project)
}

// Suggest asks the model to propose canonical names for a batch of raw
// values, given the vocabulary that already exists in the scope. Suggestions
// are advisory: nothing is written, and the is_new flag is recomputed against
// the store rather than trusted from the model.
func (n *Normalizer) Suggest(ctx context.Context, project, attrSlug string, rawValues []string) ([]model.Suggestion, error) {
	if project == "" || attrSlug == "" {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: project and attr_slug are required")
	}
	if n.client == nil {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: no model client configured")
	}

	seen := make(map[string]bool, len(rawValues))
	raws := make([]string, 0, len(rawValues))
	for _, v := range rawValues {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		norm := Normalize(v)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		raws = append(raws, v)
	}
	if len(raws) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "vocabulary: at least one raw value is required")
	}

	existing, err := n.store.ListFeatures(ctx, project, attrSlug)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(existing))
	for i, f := range existing {
		names[i] = f.CanonicalName
	}

	resp, err := n.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     n.suggestModel,
		MaxTokens: suggestMaxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildSuggestPrompt(attrSlug, raws, names)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "vocabulary: suggest request")
	}
	resp.Usage.LogCost(n.suggestModel, "vocab-suggest")

	var parsed []struct {
		RawValue      string `json:"raw_value"`
		CanonicalName string `json:"canonical_name"`
	}
	cleaned := cleanJSONArray(resp.Text())
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, eris.Wrap(err, "vocabulary: parse suggestions")
	}

	suggestions := make([]model.Suggestion, 0, len(parsed))
	for _, p := range parsed {
		p.RawValue = strings.TrimSpace(p.RawValue)
		p.CanonicalName = strings.TrimSpace(p.CanonicalName)
		if p.RawValue == "" || p.CanonicalName == "" {
			zap.L().Debug("skipping incomplete suggestion",
				zap.String("raw_value", p.RawValue),
				zap.String("canonical_name", p.CanonicalName))
			continue
		}

		resolved, err := n.store.ResolveMapping(ctx, project, attrSlug, p.CanonicalName)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, model.Suggestion{
			RawValue:      p.RawValue,
			CanonicalName: p.CanonicalName,
			IsNew:         resolved == nil,
		})
	}
	return suggestions, nil
}

func buildSuggestPrompt(attrSlug string, rawValues, existing []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`You are normalizing a controlled vocabulary for the %q attribute of a company research dataset.

Existing canonical names:
`, attrSlug))

	if len(existing) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, name := range existing {
		sb.WriteString("- " + name + "\n")
	}

	sb.WriteString("\nRaw values to normalize:\n")
	for _, v := range rawValues {
		sb.WriteString("- " + v + "\n")
	}

	sb.WriteString(`
Rules:
- Reuse an existing canonical name whenever the raw value means the same thing
- Propose a new canonical name only when no existing one fits
- Canonical names are short, title-cased noun phrases
- Keep one entry per raw value, in the order given

Respond with ONLY valid JSON in this format:
[
  {"raw_value": "<the raw value>", "canonical_name": "<existing or proposed name>", "is_new": <true if proposing a new name>}
]`)
	return sb.String()
}

// cleanJSONArray strips markdown fences and extracts the JSON array.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
