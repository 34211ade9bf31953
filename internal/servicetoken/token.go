package servicetoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates small clock skew between services.
const DefaultLeeway = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid service token")
	ErrMissingToken = errors.New("missing bearer token")
)

// Issuer mints short-lived HS256 tokens for service-to-service calls.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewIssuer creates a service token issuer for the given audience.
func NewIssuer(secret, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("service token secret is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// Issue returns a signed token.
func (i *Issuer) Issue() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Verifier validates service tokens addressed to one audience.
type Verifier struct {
	secret   []byte
	audience string
	issuers  []string
	leeway   time.Duration
}

// NewVerifier creates a verifier that accepts tokens from allowedIssuers.
func NewVerifier(secret, audience string, allowedIssuers []string, leeway time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("service token secret is required")
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		issuers:  allowedIssuers,
		leeway:   leeway,
	}, nil
}

// Verify checks signature, audience, issuer, and expiry.
func (v *Verifier) Verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if len(v.issuers) > 0 {
		allowed := false
		for _, iss := range v.issuers {
			if claims.Issuer == iss {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
