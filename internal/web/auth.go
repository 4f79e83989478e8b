package web

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"camstation/internal/debug"
)

const sessionCookie = "camstation_session"

// Gate is an optional password gate over the control UI. With no
// password hash configured every request passes through.
type Gate struct {
	hash []byte
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time // session id -> expiry
}

// NewGate creates a gate for the given bcrypt hash. An empty hash
// disables the gate.
func NewGate(passwordHash string, ttl time.Duration) *Gate {
	return &Gate{
		hash:     []byte(passwordHash),
		ttl:      ttl,
		sessions: make(map[string]time.Time),
	}
}

// Enabled reports whether a password is configured.
func (g *Gate) Enabled() bool { return len(g.hash) > 0 }

// Middleware enforces the gate on everything except the login
// endpoint and static assets.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}
		if !g.authenticated(r) {
			if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/static/login.html", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.sessions[cookie.Value]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(g.sessions, cookie.Value)
		return false
	}
	return true
}

// HandleLogin checks the submitted password against the configured
// bcrypt hash and issues a session cookie.
func (g *Gate) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !g.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	password := r.FormValue("password")
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		debug.Verbose("Login rejected")
		http.Error(w, "invalid password", http.StatusUnauthorized)
		return
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.sessions[id] = time.Now().Add(g.ttl)
	g.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
