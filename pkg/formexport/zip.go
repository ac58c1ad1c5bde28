package formexport

import (
	"archive/zip"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sitedocs/formexport/pkg/export"
	"github.com/sitedocs/formexport/pkg/normalize"
	"github.com/sitedocs/formexport/pkg/render"
)

// handleBulkExport runs a whole-project batch export. The default output is
// a zip of per-form PDFs; format=merged returns one combined PDF instead,
// each form on its own page. Forms whose rendering fails are skipped with a
// log entry; the rest of the batch is unaffected.
func (a *App) handleBulkExport(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	projectID := mux.Vars(r)["projectId"]

	format := r.URL.Query().Get("format")
	if format != "" && format != "zip" && format != "merged" {
		respondError(w, http.StatusBadRequest, "Unknown export format: "+format)
		return
	}

	results, err := a.orchestratorFor(source).ExportProject(r.Context(), projectID)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}

	opts := styleOptionsFromRequest(r)

	if format == "merged" {
		a.writeMergedExport(w, r, results, opts)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="forms_export.zip"`)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer zw.Close()

	used := make(map[string]int)
	for i := range results {
		result := &results[i]
		pdf, err := a.renderer.Render(r.Context(), result.Document, result.Assets, opts)
		if err != nil {
			a.log.Error().Err(err).Str("form_id", result.Form.ID).Msg("render failed, skipping form")
			continue
		}

		name := uniqueName(exportFileName(result), used) + ".pdf"
		entry, err := zw.Create(name)
		if err != nil {
			a.log.Error().Err(err).Msg("zip write failed, aborting archive")
			return
		}
		if _, err := entry.Write(pdf); err != nil {
			a.log.Error().Err(err).Msg("zip write failed, aborting archive")
			return
		}
	}
}

// writeMergedExport renders the whole batch as one PDF with per-form page
// breaks.
func (a *App) writeMergedExport(w http.ResponseWriter, r *http.Request, results []export.Result, opts render.StyleOptions) {
	items := make([]render.Item, 0, len(results))
	for i := range results {
		items = append(items, render.Item{Doc: results[i].Document, Assets: results[i].Assets})
	}

	pdf, err := a.renderer.RenderBatch(r.Context(), items, opts)
	if err != nil {
		a.log.Error().Err(err).Msg("merged render failed")
		respondError(w, http.StatusInternalServerError, "Failed to render export")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="forms_export.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// exportFileName picks one form's filename stem: reference-number field
// first, then the form's display name, then its id.
func exportFileName(result *export.Result) string {
	if ref := normalize.ReferenceNumber(result.Document); ref != "" {
		return sanitizeFileName(ref)
	}
	if name := result.Form.DisplayName(); name != "" {
		return sanitizeFileName(name)
	}
	return sanitizeFileName(result.Form.ID)
}

// sanitizeFileName strips characters that are unsafe inside archive entry
// names, collapsing runs of them to one underscore.
func sanitizeFileName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '.', r == ' ':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_ ")
	if out == "" {
		return "form"
	}
	return out
}

// uniqueName de-duplicates filename stems within one archive.
func uniqueName(stem string, used map[string]int) string {
	n := used[stem]
	used[stem] = n + 1
	if n == 0 {
		return stem
	}
	return fmt.Sprintf("%s (%d)", stem, n)
}
