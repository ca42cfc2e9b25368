package dimension

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

type seedFile struct {
	Dimensions []seedDimension `yaml:"dimensions"`
}

type seedDimension struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	DataType    string   `yaml:"data_type"`
	EnumValues  []string `yaml:"enum_values"`
	Source      string   `yaml:"source"`
	AIPrompt    string   `yaml:"ai_prompt"`
}

// SeedFromYAML creates the dimensions listed in a seed file under the given
// project. Dimensions whose slug already exists are skipped, so seeding is
// safe to repeat. Returns the number of dimensions created.
func (r *Registry) SeedFromYAML(ctx context.Context, project, path string) (int, error) {
	if project == "" {
		return 0, eris.Wrap(model.ErrValidation, "dimension: project is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "dimension: read seed file %s", path)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, eris.Wrapf(err, "dimension: parse seed file %s", path)
	}
	if len(seed.Dimensions) == 0 {
		return 0, eris.Wrapf(model.ErrValidation, "dimension: seed file %s defines no dimensions", path)
	}

	created := 0
	for _, sd := range seed.Dimensions {
		_, err := r.Create(ctx, model.Dimension{
			Project:     project,
			Name:        sd.Name,
			Description: sd.Description,
			DataType:    model.DataType(sd.DataType),
			EnumValues:  sd.EnumValues,
			Source:      sd.Source,
			AIPrompt:    sd.AIPrompt,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				zap.L().Debug("seed dimension already exists",
					zap.String("project", project),
					zap.String("name", sd.Name))
				continue
			}
			return created, eris.Wrapf(err, "dimension: seed %q", sd.Name)
		}
		created++
	}

	zap.L().Info("dimensions seeded",
		zap.String("project", project),
		zap.String("file", path),
		zap.Int("created", created))
	return created, nil
}
