package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Roles. Admins launch benchmark runs and read answer-key-bearing reports;
// candidates only submit answers and see their own redacted results.
const (
	roleAdmin     = "admin"
	roleCandidate = "candidate"
)

var errNoSession = errors.New("no valid session")

// Auth issues and checks session cookies backed by the users/sessions
// tables, with a static admin token as the bootstrap path. A nil pool means
// the server is running on the in-memory store; account endpoints are then
// unavailable and only the admin token authenticates.
type Auth struct {
	pool       *pgxpool.Pool
	adminToken string
	cookieName string
	sessionTTL time.Duration
}

func NewAuth(pool *pgxpool.Pool, cfg ServerConfig) *Auth {
	ttl := 8 * time.Hour
	if parsed, err := time.ParseDuration(strings.TrimSpace(cfg.Auth.SessionTTL)); err == nil && parsed > 0 {
		ttl = parsed
	}
	name := strings.TrimSpace(cfg.Auth.CookieName)
	if name == "" {
		name = "bench_session"
	}
	return &Auth{
		pool:       pool,
		adminToken: strings.TrimSpace(cfg.Security.AdminToken),
		cookieName: name,
		sessionTTL: ttl,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts require database storage")
		return
	}
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	var userID, hash, role string
	err := a.pool.QueryRow(r.Context(),
		`SELECT id, password_hash, role FROM users WHERE username=$1`, req.Username).Scan(&userID, &hash, &role)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.issueSession(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	http.SetCookie(w, a.sessionCookie(token, r.TLS != nil))
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"username": req.Username,
		"role":     role,
	})
}

func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if a.pool != nil {
		if cookie, err := r.Cookie(a.cookieName); err == nil && cookie.Value != "" {
			_, _ = a.pool.Exec(r.Context(),
				`DELETE FROM sessions WHERE token_hash=$1`, hashToken(cookie.Value))
		}
	}
	expired := a.sessionCookie("", false)
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *Auth) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := a.AuthenticateRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     principal,
	})
}

func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if p.Role != roleAdmin {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// AuthenticateRequest resolves the caller's identity: session cookie first,
// then the admin token via X-Admin-Token or an Authorization bearer.
func (a *Auth) AuthenticateRequest(r *http.Request) (Principal, error) {
	if principal, ok := a.sessionPrincipal(r); ok {
		return principal, nil
	}
	if a.adminToken != "" {
		for _, candidate := range []string{
			r.Header.Get("X-Admin-Token"),
			bearerToken(r.Header.Get("Authorization")),
		} {
			candidate = strings.TrimSpace(candidate)
			if candidate != "" && constantTimeEqual(candidate, a.adminToken) {
				return Principal{Subject: "admin-token", Username: "admin-token", Role: roleAdmin}, nil
			}
		}
	}
	return Principal{}, errNoSession
}

func (a *Auth) sessionPrincipal(r *http.Request) (Principal, bool) {
	if a.pool == nil {
		return Principal{}, false
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Principal{}, false
	}
	var sub, username, role string
	err = a.pool.QueryRow(r.Context(),
		`SELECT u.id, u.username, u.role FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash=$1 AND s.expires_at > now()`, hashToken(cookie.Value)).Scan(&sub, &username, &role)
	if err != nil {
		return Principal{}, false
	}
	return Principal{Subject: sub, Username: username, Role: role}, true
}

// issueSession mints a random token, stores only its hash, and sweeps
// expired rows on the way in.
func (a *Auth) issueSession(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	_, _ = a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	_, err := a.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		hashToken(token), userID, time.Now().Add(a.sessionTTL))
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (a *Auth) sessionCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.sessionTTL.Seconds()),
	}
}

// SeedUser creates or updates an account. Used by the server binary's
// -seed-user mode to bootstrap the first admin.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, username, password, role string) error {
	if role != roleAdmin && role != roleCandidate {
		return fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO UPDATE SET password_hash=$2, role=$3, updated_at=now()`,
		username, string(hash), role)
	return err
}

type principalContextKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	value := ctx.Value(principalContextKey{})
	principal, ok := value.(Principal)
	return principal, ok
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
