package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/crypto"
	"github.com/ethpandaops/contentoor/pkg/identity"
)

const touchTimeout = 5 * time.Second

// Credentials are the raw credentials presented by a request.
type Credentials struct {
	Bearer    string
	SessionID string
}

// CredentialsFromRequest extracts the bearer token and session cookie.
func CredentialsFromRequest(r *http.Request, cookieName string) Credentials {
	var creds Credentials

	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		creds.Bearer = strings.TrimSpace(h[7:])
	}

	if c, err := r.Cookie(cookieName); err == nil {
		creds.SessionID = c.Value
	}

	return creds
}

// Resolver turns request credentials into a Context.
type Resolver struct {
	log              logrus.FieldLogger
	store            identity.Store
	encryptionSecret string
	tokenSecret      string
	refresher        Refresher
	now              func() time.Time
	touches          sync.WaitGroup
}

// NewResolver creates a resolver. refresher may be nil, in which case an
// expired upstream token requires a new login.
func NewResolver(
	log logrus.FieldLogger,
	store identity.Store,
	encryptionSecret, tokenSecret string,
	refresher Refresher,
) *Resolver {
	return &Resolver{
		log:              log.WithField("component", "auth-resolver"),
		store:            store,
		encryptionSecret: encryptionSecret,
		tokenSecret:      tokenSecret,
		refresher:        refresher,
		now:              time.Now,
	}
}

// Resolve authenticates creds. A bearer credential always takes precedence
// over a session cookie.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (*Context, error) {
	if creds.Bearer != "" {
		return r.resolveBearer(ctx, creds.Bearer)
	}

	if creds.SessionID != "" {
		return r.resolveSession(ctx, creds.SessionID)
	}

	return nil, apperr.Unauthorized("authentication required")
}

// Wait blocks until in-flight lastUsedAt updates finish.
func (r *Resolver) Wait() {
	r.touches.Wait()
}

func (r *Resolver) resolveBearer(ctx context.Context, raw string) (*Context, error) {
	if !IsAPIToken(raw) {
		return nil, apperr.Unauthorized(
			"raw access tokens are not accepted; create a scoped api token")
	}

	tokenID, err := VerifyAPIToken(raw, r.tokenSecret)
	if err != nil {
		return nil, apperr.Unauthorized("invalid api token")
	}

	token, err := r.store.GetAPIToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid api token")
		}

		return nil, err
	}

	if token.Expired(r.now()) {
		return nil, apperr.Unauthorized("api token expired")
	}

	user, accessToken, err := r.loadUser(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	perms := make([]Permission, 0, len(token.Permissions))
	for _, p := range token.Permissions {
		perms = append(perms, Permission(p))
	}

	r.touch(ctx, tokenID)

	return &Context{
		UserID:         user.ID,
		GitHubUsername: user.GitHubUsername,
		GitHubToken:    accessToken,
		Method:         MethodAPIToken,
		TokenID:        tokenID,
		Scope: &Scope{
			Repos:       append([]string(nil), token.Repos...),
			Permissions: perms,
		},
	}, nil
}

func (r *Resolver) resolveSession(ctx context.Context, id string) (*Context, error) {
	session, err := r.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid or expired session")
		}

		return nil, err
	}

	if session.Expired(r.now()) {
		return nil, apperr.Unauthorized("invalid or expired session")
	}

	user, accessToken, err := r.loadUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	return &Context{
		UserID:         user.ID,
		GitHubUsername: user.GitHubUsername,
		GitHubToken:    accessToken,
		Method:         MethodSession,
	}, nil
}

// loadUser fetches the user and returns its decrypted upstream token,
// refreshing it first when it has expired.
func (r *Resolver) loadUser(ctx context.Context, userID string) (*identity.User, string, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, "", apperr.Unauthorized("user not found")
		}

		return nil, "", err
	}

	if user.TokenExpiresAt != nil && !r.now().Before(*user.TokenExpiresAt) {
		token, err := r.refresh(ctx, user)
		if err != nil {
			return nil, "", err
		}

		return user, token, nil
	}

	token, err := crypto.Decrypt(user.EncryptedAccessToken, r.encryptionSecret)
	if err != nil {
		r.log.WithField("user_id", userID).Warn("Failed to decrypt stored access token")

		return nil, "", apperr.Unauthorized("stored credentials are invalid; sign in again")
	}

	return user, token, nil
}

func (r *Resolver) refresh(ctx context.Context, user *identity.User) (string, error) {
	expired := apperr.Unauthorized("github authorization expired; sign in again")

	if r.refresher == nil || user.EncryptedRefreshToken == "" {
		return "", expired
	}

	refreshToken, err := crypto.Decrypt(user.EncryptedRefreshToken, r.encryptionSecret)
	if err != nil {
		return "", expired
	}

	tok, err := r.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		r.log.WithError(err).WithField("user_id", user.ID).Warn("Failed to refresh github token")

		return "", expired
	}

	if err := SealTokens(user, tok, r.encryptionSecret); err != nil {
		return "", err
	}

	if err := r.store.PutUser(ctx, user); err != nil {
		return "", err
	}

	r.log.WithField("user_id", user.ID).Debug("Refreshed github token")

	return tok.AccessToken, nil
}

// touch records token use in the background. Failures are only logged.
func (r *Resolver) touch(ctx context.Context, tokenID string) {
	at := r.now()

	r.touches.Add(1)

	go func() {
		defer r.touches.Done()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()

		err := r.store.TouchAPIToken(tctx, tokenID, at)

		switch {
		case err == nil:
		case errors.Is(err, identity.ErrNotFound):
			r.log.WithField("token_id", tokenID).Debug("Api token revoked before last use was recorded")
		default:
			r.log.WithError(err).WithField("token_id", tokenID).
				Warn("Failed to update api token last used")
		}
	}()
}
