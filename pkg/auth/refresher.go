package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/ethpandaops/contentoor/pkg/crypto"
	"github.com/ethpandaops/contentoor/pkg/identity"
)

// Refresher exchanges a refresh token for a new upstream token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through an oauth2 token endpoint.
type OAuthRefresher struct {
	cfg *oauth2.Config
}

// NewOAuthRefresher creates a refresher for the given OAuth app.
func NewOAuthRefresher(cfg *oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{cfg: cfg}
}

// Refresh returns a fresh token for refreshToken.
func (o *OAuthRefresher) Refresh(
	ctx context.Context, refreshToken string,
) (*oauth2.Token, error) {
	src := o.cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing github token: %w", err)
	}

	return tok, nil
}

// SealTokens encrypts tok into user. A token without a refresh token keeps
// the previously stored one.
func SealTokens(user *identity.User, tok *oauth2.Token, secret string) error {
	access, err := crypto.Encrypt(tok.AccessToken, secret)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}

	user.EncryptedAccessToken = access

	if tok.RefreshToken != "" {
		refresh, err := crypto.Encrypt(tok.RefreshToken, secret)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}

		user.EncryptedRefreshToken = refresh
	}

	if tok.Expiry.IsZero() {
		user.TokenExpiresAt = nil
	} else {
		expiry := tok.Expiry.UTC()
		user.TokenExpiresAt = &expiry
	}

	return nil
}
