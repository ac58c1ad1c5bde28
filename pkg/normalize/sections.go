package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitedocs/formexport/pkg/models"
)

// sectionAccumulator folds fields into a title-keyed ordered mapping. Titles
// keep first-seen order across all three container passes; fields keep append
// order within a title.
type sectionAccumulator struct {
	order  []string
	fields map[string][]models.NormalizedField
}

func newSectionAccumulator() *sectionAccumulator {
	return &sectionAccumulator{fields: make(map[string][]models.NormalizedField)}
}

func (a *sectionAccumulator) add(title string, fs ...models.NormalizedField) {
	if _, seen := a.fields[title]; !seen {
		a.order = append(a.order, title)
	}
	a.fields[title] = append(a.fields[title], fs...)
}

func (a *sectionAccumulator) sections() []models.Section {
	out := make([]models.Section, 0, len(a.order))
	for _, title := range a.order {
		out = append(out, models.Section{Title: title, Fields: a.fields[title]})
	}
	return out
}

// BuildSections folds a form's three field containers into the final ordered
// section sequence. Containers are processed in fixed order: flat (pdf)
// values, tabular values, custom values. Sections with the same resolved title
// merge; a tabular section with zero rows contributes nothing and is omitted.
func BuildSections(form *models.FormRecord, ids models.IDLabelMap) []models.Section {
	acc := newSectionAccumulator()

	for _, raw := range form.PDFValues {
		title := ids.Resolve(raw.SectionID, sectionFallback(raw.SectionLabel, fallbackFlatSection))
		acc.add(title, Field(raw, ids))
	}

	for _, key := range tabularKeys(form.TabularValues) {
		rows := form.TabularValues[key]
		fields := expandRows(rows, ids)
		if len(fields) == 0 {
			continue
		}
		acc.add(ids.Resolve(key, key), fields...)
	}

	for _, raw := range form.CustomValues {
		title := ids.Resolve(raw.SectionID, sectionFallback(raw.SectionLabel, fallbackCustomSection))
		acc.add(title, Field(raw, ids))
	}

	return acc.sections()
}

// BuildFormDocument builds the canonical document model for one form, deriving
// the id mapping from the form's template.
func BuildFormDocument(form *models.FormRecord) *models.FormDocument {
	return &models.FormDocument{
		Name:     form.DisplayName(),
		Sections: BuildSections(form, form.IDMapping()),
	}
}

func sectionFallback(sectionLabel, containerFallback string) string {
	if sectionLabel == "" {
		return containerFallback
	}
	return sectionLabel
}

// tabularKeys returns section keys sorted for deterministic output; the source
// payload is an unordered mapping.
func tabularKeys(tv map[string][]models.TabularRow) []string {
	keys := make([]string, 0, len(tv))
	for k := range tv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expandRows flattens tabular rows into one field per cell, labeled
// "{column} (Row {N})" with a 1-based row ordinal. Row numbering follows the
// source row position and is never renumbered.
func expandRows(rows []models.TabularRow, ids models.IDLabelMap) []models.NormalizedField {
	var fields []models.NormalizedField
	for idx, row := range rows {
		cols := make([]string, 0, len(row))
		for k := range row {
			cols = append(cols, k)
		}
		sort.Strings(cols)
		for _, col := range cols {
			label := fmt.Sprintf("%s (Row %d)", ids.Resolve(col, col), idx+1)
			fields = append(fields, cellField(label, row[col], ids))
		}
	}
	return fields
}

// ReferenceNumber scans a built document for a field whose label contains
// "reference number" and returns its value rendered as a filename-friendly
// string. Returns "" when no such field carries a value. Bulk export uses this
// to suggest filenames.
func ReferenceNumber(doc *models.FormDocument) string {
	for _, section := range doc.Sections {
		for _, field := range section.Fields {
			if !strings.Contains(strings.ToLower(field.Label), "reference number") {
				continue
			}
			if s := flattenValue(field.Value); s != "" {
				return s
			}
		}
	}
	return ""
}

func flattenValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "_")
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"-"+v[k])
		}
		return strings.Join(parts, "_")
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
