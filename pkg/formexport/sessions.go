package formexport

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitedocs/formexport/pkg/acc"
)

// sessionCookie names the browser cookie carrying the session id.
const sessionCookie = "formexport_session"

// Session binds a browser to an OAuth credential.
type Session struct {
	ID        string
	Token     acc.Token
	CreatedAt time.Time
}

// sessionStore is an in-memory session map. Sessions do not survive a
// restart; the OAuth flow re-creates them cheaply.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &sessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session for the token and returns a copy of it.
func (s *sessionStore) Create(token acc.Token) Session {
	sess := Session{
		ID:        uuid.NewString(),
		Token:     token,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	stored := sess
	s.sessions[sess.ID] = &stored
	s.mu.Unlock()
	return sess
}

// Get returns a snapshot of the session for an id. The copy keeps callers off
// the shared struct that UpdateToken mutates under the lock.
func (s *sessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.RUnlock()
		return Session{}, false
	}
	snapshot := *sess
	s.mu.RUnlock()

	if time.Since(snapshot.CreatedAt) > s.ttl {
		s.Delete(id)
		return Session{}, false
	}
	return snapshot, true
}

// UpdateToken replaces a session's credential after a refresh.
func (s *sessionStore) UpdateToken(id string, token acc.Token) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.Token = token
	}
	s.mu.Unlock()
}

// Delete removes a session.
func (s *sessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// sessionFromRequest resolves the request's cookie to a live session,
// refreshing the OAuth token when it has expired. Returns nil when the
// request is not authenticated.
func (a *App) sessionFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	sess, ok := a.sessions.Get(cookie.Value)
	if !ok {
		return nil
	}

	if !sess.Token.Valid() && sess.Token.RefreshToken != "" {
		token, err := a.oauth.Refresh(r.Context(), sess.Token.RefreshToken)
		if err != nil {
			a.log.Warn().Err(err).Msg("token refresh failed, dropping session")
			a.sessions.Delete(sess.ID)
			return nil
		}
		a.sessions.UpdateToken(sess.ID, token)
		sess.Token = token
	}
	if !sess.Token.Valid() {
		return nil
	}
	return &sess
}

// sourceForRequest builds a platform client bound to the request's session
// credential. The second return is false when not authenticated.
func (a *App) sourceForRequest(r *http.Request) (PlatformClient, bool) {
	sess := a.sessionFromRequest(r)
	if sess == nil {
		return nil, false
	}
	return a.newSource(acc.StaticToken(sess.Token.AccessToken)), true
}
