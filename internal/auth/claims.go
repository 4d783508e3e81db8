package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens signed with the same key.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims issued by Codec.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string    `json:"tid,omitempty"`
	Role     Role      `json:"role,omitempty"`
	Type     TokenType `json:"typ"`
	RecordID string    `json:"rid,omitempty"`
}

// Identity returns the principal described by access claims.
func (c *Claims) Identity() Identity {
	return Identity{SubjectID: c.Subject, TenantID: c.TenantID, Role: c.Role}
}

// CodecConfig configures a Codec.
type CodecConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Codec signs and verifies HS256 tokens. Access tokens embed tenant and
// role so authorisation needs no storage round-trip; a role change is
// therefore visible only from the next issued token.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec builds a Codec. An empty secret is a startup-fatal
// ErrMisconfigured; it is never replaced by a default.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: token signing secret is not set", ErrMisconfigured)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrMisconfigured)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// SignAccess issues an access token for id.
func (c *Codec) SignAccess(id Identity) (string, time.Time, error) {
	if id.SubjectID == "" || id.TenantID == "" {
		return "", time.Time{}, fmt.Errorf("signing access token: subject and tenant are required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("signing access token: %w: invalid role %q", ErrValidation, id.Role)
	}

	now := c.now()
	exp := now.Add(c.accessTTL)
	claims := Claims{
		RegisteredClaims: c.registered(id.SubjectID, now, exp),
		TenantID:         id.TenantID,
		Role:             id.Role,
		Type:             TokenTypeAccess,
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, exp, nil
}

// SignRefresh issues a refresh token naming recordID for subjectID.
func (c *Codec) SignRefresh(subjectID, recordID string) (string, error) {
	if subjectID == "" || recordID == "" {
		return "", fmt.Errorf("signing refresh token: subject and record are required")
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: c.registered(subjectID, now, now.Add(c.refreshTTL)),
		Type:             TokenTypeRefresh,
		RecordID:         recordID,
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
// Failures wrap ErrTokenExpired, ErrTokenMalformed or ErrTokenInvalid.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyAccess verifies an access token and returns its identity.
// Refresh tokens, missing tenants and roles outside the closed set fail.
func (c *Codec) VerifyAccess(tokenString string) (Identity, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return Identity{}, err
	}
	if claims.Type != TokenTypeAccess {
		return Identity{}, fmt.Errorf("%w: token type %q is not access", ErrTokenInvalid, claims.Type)
	}
	if claims.TenantID == "" {
		return Identity{}, fmt.Errorf("%w: missing tenant", ErrTokenInvalid)
	}
	if !claims.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims.Identity(), nil
}

func (c *Codec) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

func (c *Codec) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}
