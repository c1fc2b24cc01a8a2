// Package middleware provides HTTP middleware for the reference agent.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for user ID.
	UserIDKey ContextKey = "user_id"
	// UserNameKey is the context key for the display name.
	UserNameKey ContextKey = "user_name"
)

// NewTokenHeader carries a renewed credential on authenticated responses.
const NewTokenHeader = "X-New-Token"

// Claims represents JWT claims.
type Claims struct {
	UserID int    `json:"uid"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 credentials.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	renew  time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. Tokens live for ttl and are renewed
// when less than renew remains.
func NewTokens(secret string, ttl, renew time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		renew:  renew,
		now:    time.Now,
	}
}

// Issue signs a credential for a user.
func (t *Tokens) Issue(uid int, name string) (string, error) {
	claims := &Claims{
		UserID: uid,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(t.now().Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a credential and returns its claims.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Auth creates JWT authentication middleware. A credential close to expiry
// is answered with a fresh one in the X-New-Token header.
func (t *Tokens) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := t.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if exp := claims.ExpiresAt; exp != nil && exp.Time.Sub(t.now()) < t.renew {
			if renewed, err := t.Issue(claims.UserID, claims.Name); err == nil {
				w.Header().Set(NewTokenHeader, renewed)
			}
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, UserNameKey, claims.Name)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) int {
	if v, ok := ctx.Value(UserIDKey).(int); ok {
		return v
	}
	return 0
}

// GetUserName gets the display name from context.
func GetUserName(ctx context.Context) string {
	if v, ok := ctx.Value(UserNameKey).(string); ok {
		return v
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
