// Package auth carries the current owner id through request contexts and
// issues and verifies the bearer tokens the API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ownerKey struct{}

// WithOwner returns a context carrying the given owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerID returns the owner id stored in ctx, or "" when there is none.
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}

// Claims are the JWT claims rangelog issues. The subject is the owner id.
type Claims struct {
	TeamID string `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier signs and validates HS256 tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for ownerID that expires after ttl.
func (v *Verifier) Issue(ownerID, teamID string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id required")
	}
	now := v.now()
	claims := Claims{
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse validates a token and returns its claims.
func (v *Verifier) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

// Middleware resolves the bearer token into an owner id on the request
// context. Requests without a valid token pass through unauthenticated; the
// session engine rejects them.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerFromHeader(r.Header.Get("Authorization"))
		if token != "" {
			if claims, err := v.Parse(token); err == nil {
				r = r.WithContext(WithOwner(r.Context(), claims.Subject))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
