// Package auth reads the caller's identity from a bearer token. Tokens are
// issued by the identity service; this package only verifies them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the authenticated caller. Admin principals come from
// operator tooling and may carry no role.
type Principal struct {
	PersonID string
	Role     entity.Role
	Admin    bool
}

type Claims struct {
	Role  string `json:"role,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Sign issues an HS256 token for personID. The identity service shares the
// secret and uses the same claim layout.
func (v *Verifier) Sign(personID string, role entity.Role, ttl time.Duration) (string, error) {
	return v.sign(Claims{Role: string(role)}, personID, ttl)
}

// SignAdmin issues an operator token.
func (v *Verifier) SignAdmin(subject string, ttl time.Duration) (string, error) {
	return v.sign(Claims{Admin: true}, subject, ttl)
}

func (v *Verifier) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    v.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Parse(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))
	if err != nil {
		return Principal{}, errors.Join(ErrUnauthenticated, err)
	}
	role := entity.Role(claims.Role)
	if claims.Subject == "" || (!claims.Admin && !role.Valid()) {
		return Principal{}, ErrUnauthenticated
	}
	return Principal{PersonID: claims.Subject, Role: role, Admin: claims.Admin}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// principal in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			http.Error(w, "missing_token", http.StatusUnauthorized)
			return
		}
		p, err := v.Parse(strings.TrimSpace(h[len("bearer "):]))
		if err != nil {
			http.Error(w, "invalid_token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Require returns the caller when it holds one of roles.
func Require(ctx context.Context, roles ...entity.Role) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, apperr.ErrForbidden
	}
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	return Principal{}, fmt.Errorf("role %q: %w", p.Role, apperr.ErrForbidden)
}

func RequireAdmin(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok || !p.Admin {
		return Principal{}, apperr.ErrForbidden
	}
	return p, nil
}
