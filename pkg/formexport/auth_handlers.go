package formexport

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingStates holds the anti-forgery states issued to in-flight OAuth
// redirects. States expire quickly; a consent page left open past that is
// sent back through /api/auth/login.
type pendingStates struct {
	mu     sync.Mutex
	states map[string]time.Time
}

const stateTTL = 10 * time.Minute

func newPendingStates() *pendingStates {
	return &pendingStates{states: make(map[string]time.Time)}
}

func (p *pendingStates) issue() string {
	state := uuid.NewString()
	p.mu.Lock()
	p.states[state] = time.Now().Add(stateTTL)
	p.mu.Unlock()
	return state
}

func (p *pendingStates) consume(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline, ok := p.states[state]
	if !ok {
		return false
	}
	delete(p.states, state)
	return time.Now().Before(deadline)
}

// handleLogin starts the three-legged OAuth flow by redirecting the browser
// to the platform consent page.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := a.states.issue()
	http.Redirect(w, r, a.oauth.AuthorizeURL(state), http.StatusFound)
}

// handleCallback completes the OAuth flow: verifies the state, exchanges the
// code, creates a session, and sends the browser back to the app.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		respondError(w, http.StatusUnauthorized, "Authorization was denied: "+errParam)
		return
	}
	if !a.states.consume(r.URL.Query().Get("state")) {
		respondError(w, http.StatusBadRequest, "Invalid or expired state")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	token, err := a.oauth.Exchange(r.Context(), code)
	if err != nil {
		a.log.Error().Err(err).Msg("token exchange failed")
		respondError(w, http.StatusBadGateway, "Token exchange failed")
		return
	}

	sess := a.sessions.Create(token)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout drops the session and clears the cookie.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		a.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// handleAuthStatus reports whether the request carries a live session.
func (a *App) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	sess := a.sessionFromRequest(r)
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": sess != nil})
}
