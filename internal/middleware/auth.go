package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie holds the admin session token.
const SessionCookie = "session"

// SessionTTL is how long an admin session stays valid.
const SessionTTL = 12 * time.Hour

// Sessions keeps issued admin tokens in memory.
type Sessions struct {
	tokens map[string]time.Time
	ttl    time.Duration
	mu     sync.Mutex
	now    func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create issues a new token.
func (s *Sessions) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.tokens[token] = s.now().Add(s.ttl)
	return token
}

// Valid reports whether token exists and has not expired. Expired tokens are dropped.
func (s *Sessions) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().After(expires) {
		delete(s.tokens, token)
		return false
	}
	return true
}

// Revoke forgets token.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// adminOnly lists the paths that need an admin session.
func adminOnly(path string) bool {
	return strings.HasPrefix(path, "/logs/") ||
		path == "/api/history/delete" ||
		path == "/api/history/clear"
}

// AuthMiddleware chroni ścieżki administracyjne. Bez ustawionego hasła są wyłączone (403).
func AuthMiddleware(sessions *Sessions, adminEnabled bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !adminOnly(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !adminEnabled {
			http.Error(w, "Admin access disabled", http.StatusForbidden)
			return
		}

		cookie, err := r.Cookie(SessionCookie)
		if err != nil || !sessions.Valid(cookie.Value) {
			// Jeśli to zapytanie AJAX/API, zwróć 401
			if r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" ||
				r.Method != http.MethodGet {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			// Dla zwykłych żądań przekieruj na login
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
