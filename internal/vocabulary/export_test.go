package vocabulary

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/curator-cli/internal/model"
)

func seedScopedFeature(t *testing.T, n *Normalizer, attrSlug, name string, extraRaws ...string) {
	t.Helper()
	f, err := n.CreateFeature(context.Background(), model.CanonicalFeature{
		Project:       "health-plans",
		AttrSlug:      attrSlug,
		CanonicalName: name,
	})
	require.NoError(t, err)
	for _, raw := range extraRaws {
		_, err := n.AddMapping(context.Background(), f.ID, raw)
		require.NoError(t, err)
	}
}

func TestExportXLSX(t *testing.T) {
	n := newTestNormalizer(t, nil)
	ctx := context.Background()

	seedScopedFeature(t, n, "features", "Virtual GP", "online doctor")
	seedScopedFeature(t, n, "features", "Dental Cover")
	seedScopedFeature(t, n, "exclusions", "Cosmetic Surgery")

	var buf bytes.Buffer
	require.NoError(t, n.ExportXLSX(ctx, "health-plans", &buf))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 3)

	// Summary first, then one sheet per attribute in slug order.
	assert.Equal(t, "Summary", file.Sheets[0].Name)
	assert.Equal(t, "exclusions", file.Sheets[1].Name)
	assert.Equal(t, "features", file.Sheets[2].Name)

	summary := file.Sheets[0]
	require.Len(t, summary.Rows, 3)
	assert.Equal(t, "exclusions", summary.Rows[1].Cells[0].String())
	assert.Equal(t, "1", summary.Rows[1].Cells[1].String())
	assert.Equal(t, "features", summary.Rows[2].Cells[0].String())
	assert.Equal(t, "2", summary.Rows[2].Cells[1].String())
	assert.Equal(t, "3", summary.Rows[2].Cells[2].String())

	// One row per mapping, features ordered by canonical name, the
	// self-mapping before later additions.
	features := file.Sheets[2]
	require.Len(t, features.Rows, 4)
	assert.Equal(t, "Canonical Name", features.Rows[0].Cells[0].String())
	assert.Equal(t, "Dental Cover", features.Rows[1].Cells[0].String())
	assert.Equal(t, "Dental Cover", features.Rows[1].Cells[1].String())
	assert.Equal(t, "Virtual GP", features.Rows[2].Cells[0].String())
	assert.Equal(t, "Virtual GP", features.Rows[2].Cells[1].String())
	assert.Equal(t, "Virtual GP", features.Rows[3].Cells[0].String())
	assert.Equal(t, "online doctor", features.Rows[3].Cells[1].String())
}

func TestExportXLSX_EmptyVocabulary(t *testing.T) {
	n := newTestNormalizer(t, nil)

	var buf bytes.Buffer
	require.NoError(t, n.ExportXLSX(context.Background(), "health-plans", &buf))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	assert.Equal(t, "Summary", file.Sheets[0].Name)
}

func TestExportXLSX_RequiresProject(t *testing.T) {
	n := newTestNormalizer(t, nil)

	var buf bytes.Buffer
	err := n.ExportXLSX(context.Background(), "", &buf)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
