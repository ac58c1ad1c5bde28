package formexport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sitedocs/formexport/pkg/acc"
	"github.com/sitedocs/formexport/pkg/render"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondUpstreamError maps client errors onto the right status: expired
// credentials are the caller's problem, everything else is the upstream's.
func respondUpstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, acc.ErrNotAuthenticated) {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if errors.Is(err, acc.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	respondError(w, http.StatusBadGateway, err.Error())
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListHubs returns the account hubs visible to the session.
func (a *App) handleListHubs(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	hubs, err := source.ListHubs(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hubs)
}

// handleListProjects returns the projects under a hub.
func (a *App) handleListProjects(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	projects, err := source.ListProjects(r.Context(), mux.Vars(r)["hubId"])
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// handleListForms returns the project's form list.
func (a *App) handleListForms(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	forms, err := source.ListForms(r.Context(), mux.Vars(r)["projectId"])
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, forms)
}

// handleGetFormDocument returns one form's normalized document plus its
// resolved asset links as JSON.
func (a *App) handleGetFormDocument(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	vars := mux.Vars(r)
	result, err := a.orchestratorFor(source).ExportForm(r.Context(), vars["projectId"], vars["formId"])
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleGetFormPDF renders one form to PDF with the styling passed in the
// query string.
func (a *App) handleGetFormPDF(w http.ResponseWriter, r *http.Request) {
	source, ok := a.sourceForRequest(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	vars := mux.Vars(r)
	result, err := a.orchestratorFor(source).ExportForm(r.Context(), vars["projectId"], vars["formId"])
	if err != nil {
		respondUpstreamError(w, err)
		return
	}

	opts := styleOptionsFromRequest(r)
	pdf, err := a.renderer.Render(r.Context(), result.Document, result.Assets, opts)
	if err != nil {
		a.log.Error().Err(err).Str("form_id", vars["formId"]).Msg("render failed")
		respondError(w, http.StatusInternalServerError, "Rendering failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(result)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// handleProgress returns the batch progress for a project. Unknown projects
// get a zero state, not an error.
func (a *App) handleProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.tracker.Get(mux.Vars(r)["projectId"]))
}

// handleCacheStats reports cache size and per-table entry counts.
func (a *App) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.cache.CollectStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleCacheClear drops and reinitializes the whole cache store.
func (a *App) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := a.cache.ClearAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// styleOptionsFromRequest reads the document styling parameters. The logo
// arrives base64-encoded to keep the whole configuration in the query string.
func styleOptionsFromRequest(r *http.Request) render.StyleOptions {
	q := r.URL.Query()
	opts := render.StyleOptions{
		LogoPosition:       render.LogoPosition(q.Get("logoPosition")),
		LogoSize:           render.LogoSize(q.Get("logoSize")),
		Orientation:        render.Orientation(q.Get("orientation")),
		Margin:             render.MarginSize(q.Get("margin")),
		IncludePageNumbers: q.Get("pageNumbers") == "true",
		IncludeTimestamp:   q.Get("timestamp") == "true",
	}
	if logo := q.Get("logo"); logo != "" {
		if data, err := base64.StdEncoding.DecodeString(logo); err == nil {
			opts.LogoData = data
			opts.LogoMIME = q.Get("logoMime")
		}
	}
	return opts
}
