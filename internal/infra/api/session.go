package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"orafinite-billing/internal/infra/logging"
)

var errNoSession = errors.New("missing session token")

// SessionClaims is the session token issued by the account service.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Sessions resolves the caller from an HS256 session token in the
// Authorization header or the session cookie.
type Sessions struct {
	secret     []byte
	cookieName string
}

func NewSessions(secret, cookieName string) *Sessions {
	if cookieName == "" {
		cookieName = "session"
	}
	return &Sessions{secret: []byte(secret), cookieName: cookieName}
}

// Mint issues a token for userID. The account service owns login; this is used
// by tooling and tests that need a valid session.
func (s *Sessions) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserID returns the session subject. Expired and forged tokens are errors.
func (s *Sessions) UserID(r *http.Request) (string, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return s.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return s.parse(c.Value)
	}
	return "", errNoSession
}

func (s *Sessions) parse(tok string) (string, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid session token")
	}
	if claims.Subject == "" {
		return "", errors.New("session token has no subject")
	}
	return claims.Subject, nil
}

type sessionKey struct{}

// Attach resolves the session when present. Requests without one continue anonymously.
func (s *Sessions) Attach() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if uid, err := s.UserID(r); err == nil {
				ctx := context.WithValue(r.Context(), sessionKey{}, uid)
				ctx = logging.WithUserID(ctx, uid)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require rejects requests without a valid session.
func Require() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionUser(r.Context()) == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Error: "sign in required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionUser(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey{}).(string)
	return v
}
