// Package auth verifies bearer tokens and carries the caller's tenant id
// through request contexts.
package auth

import (
	"context"
	"crypto/rsa"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/config"
)

var (
	// ErrUnauthenticated is returned when a request carries no valid token.
	ErrUnauthenticated = eris.New("auth: unauthenticated")
	// ErrForbidden is returned when a request names a tenant other than the token's.
	ErrForbidden = eris.New("auth: tenant mismatch")
)

// Verifier validates a raw token and returns its subject, which is the
// tenant id for every tenant-scoped operation.
type Verifier interface {
	Verify(raw string) (string, error)
}

// JWTVerifier checks HS256 or RS256 tokens issued by the identity provider.
type JWTVerifier struct {
	key     any
	method  string
	options []jwt.ParserOption
}

// NewHMAC creates a verifier for HS256 tokens signed with secret.
func NewHMAC(secret []byte, issuer, audience string, leeway time.Duration) *JWTVerifier {
	return newVerifier(secret, jwt.SigningMethodHS256.Alg(), issuer, audience, leeway)
}

// NewRSA creates a verifier for RS256 tokens signed by the holder of pub.
func NewRSA(pub *rsa.PublicKey, issuer, audience string, leeway time.Duration) *JWTVerifier {
	return newVerifier(pub, jwt.SigningMethodRS256.Alg(), issuer, audience, leeway)
}

func newVerifier(key any, method, issuer, audience string, leeway time.Duration) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTVerifier{key: key, method: method, options: opts}
}

// FromConfig builds a verifier from the auth section of cfg.
func FromConfig(cfg config.AuthConfig) (*JWTVerifier, error) {
	leeway := time.Duration(cfg.LeewaySecs) * time.Second
	if cfg.PublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "auth: read public key")
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, eris.Wrap(err, "auth: parse public key")
		}
		return NewRSA(pub, cfg.Issuer, cfg.Audience, leeway), nil
	}
	if cfg.HMACSecret == "" {
		return nil, eris.New("auth: no signing key configured")
	}
	return NewHMAC([]byte(cfg.HMACSecret), cfg.Issuer, cfg.Audience, leeway), nil
}

// Verify parses raw and returns the token subject.
func (v *JWTVerifier) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnauthenticated
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, v.options...)
	if err != nil {
		return "", eris.Wrapf(ErrUnauthenticated, "%v", err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", eris.Wrap(ErrUnauthenticated, "token has no subject")
	}
	return claims.Subject, nil
}

type ctxKey struct{}

// WithTenant returns a copy of ctx carrying tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantFrom returns the tenant id stored by Middleware.
func TenantFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware verifies the bearer token and stores its subject as the
// tenant id. When the header is missing the request still passes through
// so handlers that accept a token in the body can verify it themselves;
// handlers read the tenant with TenantFrom and reject its absence.
func Middleware(v Verifier, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenant, err := v.Verify(raw)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

// Resolve settles the tenant for a request that may carry the token in its
// body. A header-derived tenant wins; otherwise bodyToken is verified. A
// non-empty claimed user id must match the resolved tenant.
func Resolve(ctx context.Context, v Verifier, bodyToken, claimedUserID string) (string, error) {
	tenant, ok := TenantFrom(ctx)
	if !ok {
		if strings.TrimSpace(bodyToken) == "" {
			return "", ErrUnauthenticated
		}
		var err error
		tenant, err = v.Verify(bodyToken)
		if err != nil {
			return "", err
		}
	}
	if claimedUserID != "" && claimedUserID != tenant {
		return "", eris.Wrapf(ErrForbidden, "user %s", claimedUserID)
	}
	return tenant, nil
}

// Require rejects requests that reached it without a verified tenant.
func Require(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := TenantFrom(r.Context()); !ok {
				onError(w, r, ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
