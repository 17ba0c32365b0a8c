package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie = "session"
	sessionTTL    = 24 * time.Hour
	pruneInterval = time.Hour
)

// Session is a logged in dashboard user.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthManager checks the single dashboard account and tracks its sessions
// in memory. Sessions do not survive a restart of the listener.
type AuthManager struct {
	username     string
	passwordHash string
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewAuthManager accepts username with a password matching passwordHash.
// An empty hash rejects every login.
func NewAuthManager(username, passwordHash string) *AuthManager {
	return &AuthManager{
		username:     username,
		passwordHash: passwordHash,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}
}

// HashPassword returns the bcrypt hash to store as web.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *AuthManager) ValidateCredentials(username, password string) bool {
	if a.passwordHash == "" || username != a.username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil
}

func (a *AuthManager) CreateSession(userID string) (*Session, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}

	now := a.now()
	s := &Session{
		ID:        base64.URLEncoding.EncodeToString(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}

	a.mu.Lock()
	a.sessions[s.ID] = s
	a.mu.Unlock()

	slog.Info("Dashboard login", "user", userID)
	return s, nil
}

// GetSession returns the live session for id. Expired sessions are dropped.
func (a *AuthManager) GetSession(id string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(a.now()) {
		delete(a.sessions, id)
		return nil, false
	}
	return s, true
}

func (a *AuthManager) DeleteSession(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

// RequireAuth lets requests with a live session cookie through. Others are
// redirected to /login, or get a 401 when they ask for JSON.
func (a *AuthManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookie); err == nil {
			if _, ok := a.GetSession(c.Value); ok {
				next.ServeHTTP(w, r)
				return
			}
		}

		if r.Header.Get("Accept") == "application/json" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

// prune drops expired sessions and reports how many were removed.
func (a *AuthManager) prune() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	n := 0
	for id, s := range a.sessions {
		if s.expired(now) {
			delete(a.sessions, id)
			n++
		}
	}
	return n
}

func (a *AuthManager) cleanupExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.prune(); n > 0 {
				slog.Debug("Pruned expired dashboard sessions", "count", n)
			}
		}
	}
}
