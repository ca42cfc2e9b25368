package extraction

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/registry"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// rawCandidate is the JSON shape the model is instructed to return for each
// candidate value.
type rawCandidate struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseCandidates extracts candidate values for one attribute from a model
// response. Empty arrays, null values and malformed JSON yield no candidates
// rather than errors: a sloppy response for one attribute must not fail the
// others.
func parseCandidates(def *registry.AttributeDef, resp *anthropic.MessageResponse) []Candidate {
	if resp == nil {
		return nil
	}
	cleaned := cleanJSON(resp.Text())
	if cleaned == "" {
		return nil
	}

	var raws []rawCandidate
	if err := json.Unmarshal([]byte(cleaned), &raws); err != nil {
		// Tolerate a bare object when the model skips the array wrapper.
		var one rawCandidate
		if err2 := json.Unmarshal([]byte(cleaned), &one); err2 != nil {
			zap.L().Debug("unparseable extraction response",
				zap.String("attr_slug", def.Slug),
				zap.Error(err))
			return nil
		}
		raws = []rawCandidate{one}
	}

	out := make([]Candidate, 0, len(raws))
	for _, rc := range raws {
		if rc.Value == nil {
			continue // the model reports "not found" as null
		}
		conf := rc.Confidence
		if conf < 0 || conf > 1 {
			zap.L().Debug("clamping out-of-range confidence",
				zap.String("attr_slug", def.Slug),
				zap.Float64("confidence", conf))
			conf = min(max(conf, 0), 1)
		}
		out = append(out, Candidate{
			AttrSlug:   def.Slug,
			Value:      rc.Value,
			Confidence: conf,
			Reasoning:  strings.TrimSpace(rc.Reasoning),
		})
	}
	return out
}

// cleanJSON strips markdown fences and extracts the outermost JSON value,
// array or object, from a model response.
func cleanJSON(text string) string {
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
	text = strings.TrimSpace(text)

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		if end := strings.LastIndex(text, "]"); end > arrStart {
			return strings.TrimSpace(text[arrStart : end+1])
		}
	case objStart >= 0:
		if end := strings.LastIndex(text, "}"); end > objStart {
			return strings.TrimSpace(text[objStart : end+1])
		}
	}
	return text
}
