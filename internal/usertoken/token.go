package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "scitrek-api"
	defaultTTL    = 12 * time.Hour
	defaultLeeway = 30 * time.Second
)

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid access token")

// Claims carries the authenticated identity extracted from a token.
type Claims struct {
	UserID    string
	IsStudent bool
	IsTeacher bool
}

type tokenClaims struct {
	IsStudent bool `json:"student,omitempty"`
	IsTeacher bool `json:"teacher,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 user access tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewManager creates a token manager. TTL defaults to 12h.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("user token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{secret: []byte(secret), issuer: defaultIssuer, ttl: ttl}, nil
}

// Issue mints a token for the given identity.
func (m *Manager) Issue(c Claims) (string, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		IsStudent: c.IsStudent,
		IsTeacher: c.IsTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the identity it carries.
func (m *Manager) Verify(raw string) (Claims, error) {
	parsed := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || parsed.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		UserID:    parsed.Subject,
		IsStudent: parsed.IsStudent,
		IsTeacher: parsed.IsTeacher,
	}, nil
}
