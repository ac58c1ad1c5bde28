package acc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Token is an issued OAuth credential with its computed expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the access token is present and not yet expired. A
// small skew keeps requests from racing the expiry.
func (t Token) Valid() bool {
	return t.AccessToken != "" && time.Now().Before(t.ExpiresAt.Add(-30*time.Second))
}

// OAuthConfig holds the three-legged OAuth application settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	// AuthBaseURL overrides the identity host, mainly for tests.
	AuthBaseURL string
}

func (c OAuthConfig) base() string {
	if c.AuthBaseURL != "" {
		return strings.TrimSuffix(c.AuthBaseURL, "/")
	}
	return DefaultBaseURL
}

func (c OAuthConfig) scopes() string {
	if len(c.Scopes) == 0 {
		return "data:read account:read"
	}
	return strings.Join(c.Scopes, " ")
}

// OAuthClient performs the three-legged authorization-code flow against the
// platform identity service.
type OAuthClient struct {
	cfg        OAuthConfig
	httpClient *http.Client
}

// NewOAuthClient creates an OAuth client.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	return &OAuthClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthorizeURL builds the consent-page URL for the given anti-forgery state.
func (o *OAuthClient) AuthorizeURL(state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {o.cfg.ClientID},
		"redirect_uri":  {o.cfg.CallbackURL},
		"scope":         {o.cfg.scopes()},
		"state":         {state},
	}
	return o.cfg.base() + "/authentication/v2/authorize?" + q.Encode()
}

// Exchange trades an authorization code for a token.
func (o *OAuthClient) Exchange(ctx context.Context, code string) (Token, error) {
	return o.tokenRequest(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {o.cfg.CallbackURL},
	})
}

// Refresh trades a refresh token for a fresh token.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	return o.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (o *OAuthClient) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", o.cfg.ClientID)
	form.Set("client_secret", o.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.cfg.base()+"/authentication/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, fmt.Errorf("token request failed: %d - %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	return Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
