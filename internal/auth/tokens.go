// Package auth issues and verifies the join tokens peers present when they
// connect to the relay.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"skirmish/server/internal/action"
)

const (
	// DefaultTTL bounds how long an issued token stays valid.
	DefaultTTL = 12 * time.Hour
	// MinSecretLength is the shortest accepted HMAC secret.
	MinSecretLength = 16

	defaultIssuer = "skirmish"
)

var (
	ErrInvalidToken  = errors.New("auth: join token is invalid")
	ErrExpiredToken  = errors.New("auth: join token is expired")
	ErrScopeMismatch = errors.New("auth: join token is for another scope")
)

// Config configures token issuance and verification.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Claims are the verified contents of a join token.
type Claims struct {
	ID        string
	User      action.UserID
	Name      string
	Scope     action.ScopeID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type joinClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Scope string `json:"scope"`
}

// Tokens signs and verifies HMAC join tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens validates cfg and constructs a token service.
func NewTokens(cfg Config) (*Tokens, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLength)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: append([]byte(nil), cfg.Secret...), issuer: issuer, ttl: ttl, now: now}, nil
}

// Issue signs a token admitting user into scope.
func (t *Tokens) Issue(user action.UserID, name string, scope action.ScopeID) (string, error) {
	if strings.TrimSpace(string(user)) == "" {
		return "", errors.New("auth: user is required")
	}
	issued := t.now().UTC()
	claims := joinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   string(user),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(t.ttl)),
		},
		Name:  name,
		Scope: string(scope),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign join token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, expiry and scope of token.
func (t *Tokens) Verify(token string, scope action.ScopeID) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	var parsed joinClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Issuer != t.issuer || parsed.Subject == "" || parsed.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	expires := parsed.ExpiresAt.Time.UTC()
	if !expires.After(t.now().UTC()) {
		return Claims{}, ErrExpiredToken
	}
	if scope != "" && parsed.Scope != string(scope) {
		return Claims{}, ErrScopeMismatch
	}
	claims := Claims{
		ID:        parsed.ID,
		User:      action.UserID(parsed.Subject),
		Name:      parsed.Name,
		Scope:     action.ScopeID(parsed.Scope),
		ExpiresAt: expires,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}
