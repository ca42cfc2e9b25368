package vocabulary

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/curator-cli/internal/model"
)

// ExportXLSX writes the project's vocabulary as an XLSX workbook: a summary
// sheet plus one sheet per attribute listing every canonical feature and the
// raw values mapped to it.
func (n *Normalizer) ExportXLSX(ctx context.Context, project string, w io.Writer) error {
	if project == "" {
		return eris.Wrap(model.ErrValidation, "vocabulary: project is required")
	}

	stats, err := n.store.VocabStats(ctx, project)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "vocabulary: add summary sheet")
	}
	header := summary.AddRow()
	header.AddCell().Value = "Attribute"
	header.AddCell().Value = "Features"
	header.AddCell().Value = "Mappings"
	for _, st := range stats {
		row := summary.AddRow()
		row.AddCell().Value = st.AttrSlug
		row.AddCell().SetInt(st.FeatureCount)
		row.AddCell().SetInt(st.MappingCount)
	}

	for _, st := range stats {
		if err := n.addVocabSheet(ctx, file, project, st.AttrSlug); err != nil {
			return err
		}
	}

	return eris.Wrap(file.Write(w), "vocabulary: write workbook")
}

func (n *Normalizer) addVocabSheet(ctx context.Context, file *xlsx.File, project, attrSlug string) error {
	sheet, err := file.AddSheet(attrSlug)
	if err != nil {
		return eris.Wrapf(err, "vocabulary: add sheet %s", attrSlug)
	}

	header := sheet.AddRow()
	header.AddCell().Value = "Canonical Name"
	header.AddCell().Value = "Raw Value"
	header.AddCell().Value = "Description"
	header.AddCell().Value = "Category"

	features, err := n.store.ListFeatures(ctx, project, attrSlug)
	if err != nil {
		return err
	}
	for _, f := range features {
		full, err := n.store.GetFeature(ctx, f.ID)
		if err != nil {
			return err
		}
		for _, m := range full.Mappings {
			row := sheet.AddRow()
			row.AddCell().Value = full.CanonicalName
			row.AddCell().Value = m.RawValue
			row.AddCell().Value = full.Description
			row.AddCell().Value = full.Category
		}
	}
	return nil
}
