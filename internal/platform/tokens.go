package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenRequest is the wire form of a notification token request.
type tokenRequest struct {
	Subscriber       string `json:"subscriber"`
	Subscription     string `json:"subscription"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
	Shared           bool   `json:"shared"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken requests a fresh notification token scoped to the given
// subscriber identity and subscription name.
//
// Tokens are write-once-use-many until expiry or explicit invalidation;
// notify-core never refreshes a token in place and always requests a fresh
// one before a (re)connect attempt. exclusive=false (shared) allows the
// platform to fan the subscription out to multiple consumers.
func (c *Client) IssueToken(ctx context.Context, subscriber, subscription string, ttlMinutes int, exclusive bool) (string, error) {
	req := tokenRequest{
		Subscriber:       subscriber,
		Subscription:     subscription,
		ExpiresInMinutes: ttlMinutes,
		Shared:           !exclusive,
	}

	var resp tokenResponse
	if err := c.do(ctx, "POST", "/notification2/token", nil, req, &resp); err != nil {
		return "", fmt.Errorf("issuing token for subscriber %q: %w", subscriber, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty token for subscriber %q", ErrBadResponse, subscriber)
	}
	return resp.Token, nil
}

// InvalidateToken unsubscribes the scope the token was issued for and causes
// the platform to drop any session still authenticated with a token sharing
// that subscriber/subscription pair. Expired tokens are accepted.
func (c *Client) InvalidateToken(ctx context.Context, token string) error {
	query := url.Values{"token": {token}}
	if err := c.do(ctx, "POST", "/notification2/unsubscribe", query, nil, nil); err != nil {
		return fmt.Errorf("invalidating token: %w", err)
	}
	return nil
}

// TokenExpiry extracts the expiry claim from a notification token without
// verifying its signature. The platform signs tokens with its own key; the
// claim is inspected purely for logging and for deciding whether a recorded
// token has already lapsed.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token claims: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiry claim")
	}
	return exp.Time, nil
}
