// Package acc is the HTTP client for the construction-cloud platform: hub and
// project browsing, the construction forms API, the assets APIs (v1 listing,
// v2 details), the locations tree, and the relationship search endpoint.
//
// Every call carries the bearer credential supplied by a TokenProvider.
// Transient upstream failures surface as errors the caller treats as "no data"
// for that call; only a missing credential is fatal to a request.
package acc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitedocs/formexport/pkg/models"
)

// DefaultBaseURL is the platform API root.
const DefaultBaseURL = "https://developer.api.autodesk.com"

var (
	// ErrNotAuthenticated reports a missing or expired credential. Never
	// retried automatically.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound reports a requested record absent from the fetched
	// collection.
	ErrNotFound = errors.New("not found")
)

// TokenProvider supplies the current bearer credential. The second return is
// false when no valid credential is available.
type TokenProvider interface {
	CurrentToken() (string, bool)
}

// StaticToken is a TokenProvider for a fixed credential.
type StaticToken string

func (t StaticToken) CurrentToken() (string, bool) { return string(t), t != "" }

// Source is the Forms Data Source contract consumed by the resolver and the
// orchestrator. *Client implements it.
type Source interface {
	ListForms(ctx context.Context, projectID string) ([]models.FormRecord, error)
	GetForm(ctx context.Context, projectID, formID string) (*models.FormRecord, error)
	ListAssets(ctx context.Context, projectID string) ([]models.AssetRecord, error)
	GetAssetDetails(ctx context.Context, projectID, assetID string) (*models.AssetRecord, error)
	ListLocations(ctx context.Context, projectID string) ([]models.LocationRecord, error)
	SearchRelationships(ctx context.Context, projectID string) ([]models.RelationshipEdge, error)
}

// Client talks to the platform APIs with a bearer credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a platform client using the given credential source.
func NewClient(tokens TokenProvider, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		log:        log.With().Str("component", "acc").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api request failed: %d - %s", e.StatusCode, e.Body)
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, ok := c.tokens.CurrentToken()
	if !ok {
		return ErrNotAuthenticated
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("upstream request failed")
		return &apiError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ListForms returns every submitted form for a project, in API order.
func (c *Client) ListForms(ctx context.Context, projectID string) ([]models.FormRecord, error) {
	clean := models.CleanProjectID(projectID)
	var payload struct {
		Data []models.FormRecord `json:"data"`
	}
	path := fmt.Sprintf("/construction/forms/v1/projects/%s/forms", clean)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return payload.Data, nil
}

// GetForm fetches one form by id. Falls back to scanning the project's form
// list when the direct endpoint does not know the id spelling.
func (c *Client) GetForm(ctx context.Context, projectID, formID string) (*models.FormRecord, error) {
	clean := models.CleanProjectID(projectID)
	cleanForm := models.CleanEntityID(formID)

	var form models.FormRecord
	path := fmt.Sprintf("/construction/forms/v1/projects/%s/forms/%s", clean, cleanForm)
	err := c.get(ctx, path, nil, &form)
	if err == nil && form.ID != "" {
		return &form, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		var apiErr *apiError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
	}

	forms, err := c.ListForms(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range forms {
		if forms[i].ID == cleanForm {
			return &forms[i], nil
		}
	}
	return nil, fmt.Errorf("form %s: %w", cleanForm, ErrNotFound)
}

// ListAssets returns the project's full asset list (v1 shape, nested
// attributes).
func (c *Client) ListAssets(ctx context.Context, projectID string) ([]models.AssetRecord, error) {
	clean := models.CleanProjectID(projectID)
	var payload struct {
		Data []models.AssetRecord `json:"data"`
	}
	path := fmt.Sprintf("/construction/assets/v1/projects/%s/assets", clean)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return payload.Data, nil
}

// GetAssetDetails looks up one asset in the v2 listing. The v2 API is fussy
// about the project-id prefix, so a failed lookup retries once with the
// business-container spelling before reporting absence as (nil, nil).
func (c *Client) GetAssetDetails(ctx context.Context, projectID, assetID string) (*models.AssetRecord, error) {
	clean := models.CleanProjectID(projectID)

	for _, pid := range []string{clean, models.WithBusinessPrefix(clean)} {
		var payload struct {
			Results []models.AssetRecord `json:"results"`
		}
		path := fmt.Sprintf("/construction/assets/v2/projects/%s/assets", pid)
		if err := c.get(ctx, path, nil, &payload); err != nil {
			if errors.Is(err, ErrNotAuthenticated) {
				return nil, err
			}
			continue
		}
		for i := range payload.Results {
			if payload.Results[i].ID == assetID {
				return &payload.Results[i], nil
			}
		}
		// Listing succeeded but the asset is not in it; the prefix variant
		// will not change that.
		return nil, nil
	}
	return nil, nil
}

// ListLocations returns the project's location tree nodes.
func (c *Client) ListLocations(ctx context.Context, projectID string) ([]models.LocationRecord, error) {
	clean := models.CleanProjectID(projectID)
	var payload struct {
		Results []models.LocationRecord `json:"results"`
	}
	path := fmt.Sprintf("/bim360/locations/v2/containers/%s/trees/default/nodes", clean)
	if err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return payload.Results, nil
}

// SearchRelationships returns the project's full relationship graph. Fetched
// once per batch and cached; never issued per form.
func (c *Client) SearchRelationships(ctx context.Context, projectID string) ([]models.RelationshipEdge, error) {
	clean := models.CleanProjectID(projectID)
	var payload struct {
		Relationships []models.RelationshipEdge `json:"relationships"`
	}
	query := url.Values{"pageLimit": {"200"}}
	path := fmt.Sprintf("/bim360/relationship/v2/containers/%s/relationships:search", clean)
	if err := c.get(ctx, path, query, &payload); err != nil {
		return nil, fmt.Errorf("failed to search relationships: %w", err)
	}
	return payload.Relationships, nil
}
