package formexport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router builds the HTTP route table.
//
// Authentication:
//
//	GET  /api/auth/login                                 - Start the OAuth sign-in flow
//	GET  /api/auth/callback                              - OAuth redirect target
//	POST /api/auth/logout                                - Drop the session
//	GET  /api/auth/status                                - Session status
//
// Browsing:
//
//	GET  /api/hubs                                       - Account hubs
//	GET  /api/hubs/{hubId}/projects                      - Projects in a hub
//	GET  /api/projects/{projectId}/forms                 - Project form list
//
// Export:
//
//	GET  /api/projects/{projectId}/forms/{formId}        - One form's document + assets as JSON
//	GET  /api/projects/{projectId}/forms/{formId}/pdf    - One form rendered to PDF
//	POST /api/projects/{projectId}/export                - Batch export, zip of PDFs
//	GET  /api/projects/{projectId}/progress              - Batch progress (poll)
//	GET  /api/projects/{projectId}/progress/stream       - Batch progress (websocket)
//
// Cache:
//
//	GET  /api/cache/stats                                - Size and entry counts
//	POST /api/cache/clear                                - Drop and reinitialize
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", a.handleLogin).Methods("GET")
	api.HandleFunc("/auth/callback", a.handleCallback).Methods("GET")
	api.HandleFunc("/auth/logout", a.handleLogout).Methods("POST")
	api.HandleFunc("/auth/status", a.handleAuthStatus).Methods("GET")

	api.HandleFunc("/hubs", a.handleListHubs).Methods("GET")
	api.HandleFunc("/hubs/{hubId}/projects", a.handleListProjects).Methods("GET")
	api.HandleFunc("/projects/{projectId}/forms", a.handleListForms).Methods("GET")
	api.HandleFunc("/projects/{projectId}/forms/{formId}", a.handleGetFormDocument).Methods("GET")
	api.HandleFunc("/projects/{projectId}/forms/{formId}/pdf", a.handleGetFormPDF).Methods("GET")

	api.HandleFunc("/projects/{projectId}/export", a.handleBulkExport).Methods("POST")
	api.HandleFunc("/projects/{projectId}/progress", a.handleProgress).Methods("GET")
	api.HandleFunc("/projects/{projectId}/progress/stream", a.handleProgressStream).Methods("GET")

	api.HandleFunc("/cache/stats", a.handleCacheStats).Methods("GET")
	api.HandleFunc("/cache/clear", a.handleCacheClear).Methods("POST")

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. Graceful shutdown allows up to 5 seconds for in-flight
// requests.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	server := &http.Server{
		Addr:    addr,
		Handler: a.Router(),
	}

	a.log.Info().Str("addr", addr).Msg("starting formexport server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
