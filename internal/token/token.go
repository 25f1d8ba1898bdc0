package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed signatures and expired tokens alike, so
// callers cannot distinguish which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims carries the identity embedded in issued tokens. SessionVersion is
// present in access tokens only; refresh tokens carry just id and email.
type Claims struct {
	UserID         string `json:"id"`
	Email          string `json:"email"`
	Role           string `json:"role,omitempty"`
	SessionVersion string `json:"sv,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens with disjoint HMAC-SHA256
// secrets. Construction fails fast on missing secrets; per-request issuance
// cannot fail on configuration.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// New builds a Codec. A zero TTL falls back to the default; a negative TTL is
// kept as-is and issues tokens that are already expired.
func New(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs a short-lived access token embedding the full
// identity, including the current session version when one exists.
func (c *Codec) IssueAccessToken(claims Claims) (string, error) {
	return c.sign(claims, c.accessSecret, c.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token carrying only id/email.
func (c *Codec) IssueRefreshToken(claims Claims) (string, error) {
	slim := Claims{UserID: claims.UserID, Email: claims.Email}
	return c.sign(slim, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess decodes an access token or fails with ErrInvalidToken.
func (c *Codec) VerifyAccess(tok string) (Claims, error) {
	return c.verify(tok, c.accessSecret)
}

// VerifyRefresh decodes a refresh token or fails with ErrInvalidToken.
func (c *Codec) VerifyRefresh(tok string) (Claims, error) {
	return c.verify(tok, c.refreshSecret)
}

func (c *Codec) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *Codec) verify(tok string, secret []byte) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
