package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession means there is no usable session token: none was stored or
// the stored one has expired.
var ErrNoSession = errors.New("no active session")

// Claims is the subset of the session token the client relies on.
type Claims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry that lies before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseClaims extracts the user id, role and expiry from a session JWT.
// The signature is not verified: the backend does that on every request,
// the client only needs to know who it is acting for.
func ParseClaims(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("parsing session token: %w", err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("parsing session token: unexpected claims type")
	}

	var c Claims
	for _, key := range []string{"userId", "sub", "id"} {
		if s := claimString(mc, key); s != "" {
			c.UserID = s
			break
		}
	}
	if c.UserID == "" {
		return Claims{}, errors.New("parsing session token: no user id claim")
	}
	for _, key := range []string{"role", "rol"} {
		if s := claimString(mc, key); s != "" {
			c.Role = s
			break
		}
	}
	if c.Role == "" {
		if roles, ok := mc["roles"].([]interface{}); ok && len(roles) > 0 {
			c.Role = fmt.Sprint(roles[0])
		}
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

func claimString(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// VaultTokenSource serves the vault's token to the API client and the
// realtime transport, rejecting expired tokens up front.
type VaultTokenSource struct {
	Vault *Vault
	Now   func() time.Time
}

// Token implements api.TokenSource.
func (s *VaultTokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := s.Vault.Token()
	if err != nil {
		return "", err
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if claims.Expired(now()) {
		return "", fmt.Errorf("%w: token expired at %s", ErrNoSession, claims.ExpiresAt.Format(time.RFC3339))
	}
	return token, nil
}

// StaticTokenSource serves a fixed token, e.g. one passed on the command
// line.
type StaticTokenSource string

// Token implements api.TokenSource.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoSession
	}
	return string(s), nil
}
