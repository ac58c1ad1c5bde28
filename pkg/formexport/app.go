// Package formexport is the web service tying the pieces together: the OAuth
// sign-in flow, the project/form browsing API, single-form and batch export
// endpoints, and cache maintenance.
package formexport

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitedocs/formexport/pkg/acc"
	"github.com/sitedocs/formexport/pkg/cache"
	"github.com/sitedocs/formexport/pkg/export"
	"github.com/sitedocs/formexport/pkg/models"
	"github.com/sitedocs/formexport/pkg/relate"
	"github.com/sitedocs/formexport/pkg/render"
)

// Config holds application configuration, read from the environment.
type Config struct {
	// OAuth application settings.
	ClientID     string
	ClientSecret string
	CallbackURL  string

	// APIBaseURL overrides the platform API host, mainly for tests.
	APIBaseURL string

	// Server configuration.
	ServerPort string

	// Cache configuration.
	CachePath          string
	CacheSizeThreshold int64
	CacheRetention     time.Duration
	CacheMaxEntries    int

	// SessionTTL bounds how long a signed-in session stays usable without a
	// token refresh.
	SessionTTL time.Duration
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything but the OAuth credentials.
func FromEnv() *Config {
	cfg := &Config{
		ClientID:     os.Getenv("FORMEXPORT_CLIENT_ID"),
		ClientSecret: os.Getenv("FORMEXPORT_CLIENT_SECRET"),
		CallbackURL:  envOr("FORMEXPORT_CALLBACK_URL", "http://localhost:8080/api/auth/callback"),
		ServerPort:   envOr("FORMEXPORT_PORT", "8080"),
		CachePath:    envOr("FORMEXPORT_CACHE_PATH", "cache.db"),
		SessionTTL:   12 * time.Hour,
	}
	if v, err := strconv.ParseInt(os.Getenv("FORMEXPORT_CACHE_SIZE_LIMIT"), 10, 64); err == nil && v > 0 {
		cfg.CacheSizeThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("FORMEXPORT_CACHE_MAX_ENTRIES")); err == nil && v > 0 {
		cfg.CacheMaxEntries = v
	}
	if v, err := strconv.Atoi(os.Getenv("FORMEXPORT_CACHE_RETENTION_DAYS")); err == nil && v > 0 {
		cfg.CacheRetention = time.Duration(v) * 24 * time.Hour
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the settings a running server cannot do without.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("FORMEXPORT_CLIENT_ID and FORMEXPORT_CLIENT_SECRET are required")
	}
	return nil
}

// PlatformClient is everything the request handlers need from the platform
// API: the form-export source plus hub and project browsing. *acc.Client
// implements it.
type PlatformClient interface {
	acc.Source
	ListHubs(ctx context.Context) ([]models.Hub, error)
	ListProjects(ctx context.Context, hubID string) ([]models.Project, error)
	GetProject(ctx context.Context, hubID, projectID string) (*models.Project, error)
}

// App holds the application state shared across requests: the persistent
// cache, the progress tracker, the session store, and the OAuth client. A
// platform client is built per request with the session's credential.
type App struct {
	config   *Config
	cache    *cache.Store
	tracker  *export.Tracker
	oauth    *acc.OAuthClient
	sessions *sessionStore
	states   *pendingStates
	renderer render.Renderer
	log      zerolog.Logger

	// newSource builds the per-request platform client; tests swap it out.
	newSource func(acc.TokenProvider) PlatformClient
}

// New creates an application instance. The cache is opened eagerly so a
// corrupt store fails the start, not the first export.
func New(config *Config, log zerolog.Logger) (*App, error) {
	store, err := cache.Open(cache.Config{
		Path:          config.CachePath,
		SizeThreshold: config.CacheSizeThreshold,
		Retention:     config.CacheRetention,
		MaxEntries:    config.CacheMaxEntries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	app := &App{
		config:  config,
		cache:   store,
		tracker: export.NewTracker(),
		oauth: acc.NewOAuthClient(acc.OAuthConfig{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			CallbackURL:  config.CallbackURL,
			AuthBaseURL:  config.APIBaseURL,
		}),
		sessions: newSessionStore(config.SessionTTL),
		states:   newPendingStates(),
		renderer: &render.PDFRenderer{},
		log:      log,
	}
	app.newSource = func(tokens acc.TokenProvider) PlatformClient {
		opts := []acc.Option{}
		if config.APIBaseURL != "" {
			opts = append(opts, acc.WithBaseURL(config.APIBaseURL))
		}
		return acc.NewClient(tokens, log, opts...)
	}
	return app, nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}

// orchestratorFor wires a batch orchestrator around a per-request source,
// sharing the process-wide cache and tracker.
func (a *App) orchestratorFor(source acc.Source) *export.Orchestrator {
	return export.NewOrchestrator(source, a.cache, relate.NewResolver(a.log), a.tracker, a.log)
}
