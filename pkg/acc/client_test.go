package acc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(StaticToken("test-token"), zerolog.Nop(), WithBaseURL(srv.URL))
	return c, srv
}

func TestClientAuthentication(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		var gotAuth string
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}))

		_, err := c.ListForms(context.Background(), "proj-1")
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token", gotAuth)
	})

	t.Run("missing token fails before any request", func(t *testing.T) {
		called := false
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		c.tokens = StaticToken("")

		_, err := c.ListForms(context.Background(), "proj-1")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.False(t, called)
	})

	t.Run("401 maps to ErrNotAuthenticated", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := c.ListForms(context.Background(), "proj-1")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestListForms(t *testing.T) {
	t.Run("strips business prefix from project id", func(t *testing.T) {
		var gotPath string
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"id": "form-1", "name": "Daily Report"},
			}})
		}))

		forms, err := c.ListForms(context.Background(), "b.proj-1")
		require.NoError(t, err)
		assert.Equal(t, "/construction/forms/v1/projects/proj-1/forms", gotPath)
		require.Len(t, forms, 1)
		assert.Equal(t, "form-1", forms[0].ID)
	})
}

func TestGetForm(t *testing.T) {
	t.Run("direct fetch", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": "form-1", "name": "Daily Report"})
		}))

		form, err := c.GetForm(context.Background(), "proj-1", "form-1")
		require.NoError(t, err)
		assert.Equal(t, "Daily Report", form.Name)
	})

	t.Run("falls back to list scan when direct fetch misses", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/construction/forms/v1/projects/proj-1/forms/form-2" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"id": "form-1"},
				{"id": "form-2", "name": "Inspection"},
			}})
		}))

		form, err := c.GetForm(context.Background(), "proj-1", "form-2")
		require.NoError(t, err)
		assert.Equal(t, "Inspection", form.Name)
	})

	t.Run("strips lineage urn from form id", func(t *testing.T) {
		var gotPath string
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{"id": "abc123"})
		}))

		_, err := c.GetForm(context.Background(), "proj-1", "urn:adsk.wipprod:dm.lineage:abc123")
		require.NoError(t, err)
		assert.Equal(t, "/construction/forms/v1/projects/proj-1/forms/abc123", gotPath)
	})

	t.Run("absent everywhere reports not found", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/construction/forms/v1/projects/proj-1/forms" {
				json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := c.GetForm(context.Background(), "proj-1", "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetAssetDetails(t *testing.T) {
	t.Run("found in v2 listing", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
				{"id": "asset-1", "clientAssetId": "PUMP-01"},
				{"id": "asset-2", "clientAssetId": "PUMP-02"},
			}})
		}))

		asset, err := c.GetAssetDetails(context.Background(), "proj-1", "asset-2")
		require.NoError(t, err)
		require.NotNil(t, asset)
		assert.Equal(t, "PUMP-02", asset.ClientAssetID)
	})

	t.Run("retries with business prefix when bare id fails", func(t *testing.T) {
		var paths []string
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			if r.URL.Path == "/construction/assets/v2/projects/proj-1/assets" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
				{"id": "asset-1"},
			}})
		}))

		asset, err := c.GetAssetDetails(context.Background(), "proj-1", "asset-1")
		require.NoError(t, err)
		require.NotNil(t, asset)
		assert.Equal(t, []string{
			"/construction/assets/v2/projects/proj-1/assets",
			"/construction/assets/v2/projects/b.proj-1/assets",
		}, paths)
	})

	t.Run("absent asset is nil without error", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
		}))

		asset, err := c.GetAssetDetails(context.Background(), "proj-1", "ghost")
		require.NoError(t, err)
		assert.Nil(t, asset)
	})
}

func TestSearchRelationships(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("pageLimit"))
		json.NewEncoder(w).Encode(map[string]any{"relationships": []map[string]any{
			{"id": "rel-1", "entities": []map[string]any{
				{"domain": "autodesk-construction-forms", "type": "form", "id": "form-1"},
				{"domain": "autodesk-construction-assets", "type": "asset", "id": "asset-1"},
			}},
		}})
	}))

	edges, err := c.SearchRelationships(context.Background(), "b.proj-1")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "rel-1", edges[0].ID)
	assert.Len(t, edges[0].Entities, 2)
}

func TestListHubsAndProjects(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/v1/hubs":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"id": "hub-1", "attributes": map[string]any{"name": "Acme Construction", "region": "US"}},
			}})
		case "/project/v1/hubs/hub-1/projects":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"id": "b.proj-1", "attributes": map[string]any{"name": "Tower Block A"}},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	hubs, err := c.ListHubs(context.Background())
	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, "Acme Construction", hubs[0].Name)

	projects, err := c.ListProjects(context.Background(), "hub-1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Tower Block A", projects[0].Name)
	assert.Equal(t, "b.proj-1", projects[0].ID)
}

func TestOAuthClient(t *testing.T) {
	t.Run("authorize url carries state and scopes", func(t *testing.T) {
		o := NewOAuthClient(OAuthConfig{
			ClientID:    "client-1",
			CallbackURL: "http://localhost:8080/callback",
		})
		u := o.AuthorizeURL("state-xyz")
		assert.Contains(t, u, "state=state-xyz")
		assert.Contains(t, u, "client_id=client-1")
		assert.Contains(t, u, "response_type=code")
	})

	t.Run("exchange posts code and decodes token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "code-123", r.PostForm.Get("code"))
			assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_in":    3600,
			})
		}))
		defer srv.Close()

		o := NewOAuthClient(OAuthConfig{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			CallbackURL:  "http://localhost:8080/callback",
			AuthBaseURL:  srv.URL,
		})
		tok, err := o.Exchange(context.Background(), "code-123")
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)
		assert.Equal(t, "rt-1", tok.RefreshToken)
		assert.True(t, tok.Valid())
	})

	t.Run("error status surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		o := NewOAuthClient(OAuthConfig{AuthBaseURL: srv.URL})
		_, err := o.Exchange(context.Background(), "bad-code")
		assert.Error(t, err)
	})
}
