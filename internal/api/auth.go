package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session identifies the host behind an authenticated request.
type Session struct {
	HostID   uuid.UUID
	Username string
}

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

type hostClaims struct {
	Username string `json:"username,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

const (
	purposeAccess     = ""
	purposeOAuthState = "oauth_state"
)

// Tokens signs and verifies HS256 host tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

func (t *Tokens) sign(s Session, purpose string, ttl time.Duration) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := t.now()
	claims := hostClaims{
		Username: s.Username,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.HostID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Issue returns an access token for the host.
func (t *Tokens) Issue(s Session, ttl time.Duration) (string, error) {
	return t.sign(s, purposeAccess, ttl)
}

func (t *Tokens) parse(tokenStr, purpose string) (Session, error) {
	if len(t.secret) == 0 {
		return Session{}, errors.New("jwt secret is not configured")
	}
	var claims hostClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return t.secret, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, err
	}
	if claims.Purpose != purpose {
		return Session{}, fmt.Errorf("token purpose %q not accepted", claims.Purpose)
	}
	hostID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Session{}, fmt.Errorf("token subject: %w", err)
	}
	return Session{HostID: hostID, Username: claims.Username}, nil
}

func (t *Tokens) Verify(tokenStr string) (Session, error) {
	return t.parse(tokenStr, purposeAccess)
}

// AuthMiddleware requires a valid bearer token and stores the Session in the
// request context.
func (t *Tokens) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization")
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization format")
			return
		}

		s, err := t.Verify(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func mustSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	s, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
	}
	return s, ok
}
