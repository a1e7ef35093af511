package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/auth"
	"github.com/ethpandaops/contentoor/pkg/crypto"
	"github.com/ethpandaops/contentoor/pkg/identity"
)

const (
	oauthStateCookie = "cms_oauth_state"
	oauthStateTTL    = 10 * time.Minute
	oauthStateIssuer = "contentoor"

	defaultDeviceInterval = 5
	devicePollGrace       = 3 * time.Second
)

// handleGitHubAuth starts the GitHub OAuth web flow.
func (s *server) handleGitHubAuth(w http.ResponseWriter, r *http.Request) {
	stateID := uuid.NewString()

	if err := s.identity.SaveOAuthState(r.Context(), stateID); err != nil {
		s.writeError(w, r, fmt.Errorf("saving oauth state: %w", err))

		return
	}

	state, err := s.signState(stateID, time.Now())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    stateID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(r),
		MaxAge:   int(oauthStateTTL.Seconds()),
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleGitHubCallback completes the web flow. The state must verify, match
// the state cookie and not have been used before.
func (s *server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		s.writeError(w, r, apperr.Unauthorized("github login was not completed: "+e))

		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		s.writeError(w, r, apperr.Validation("missing oauth state cookie"))

		return
	}

	stateID, err := s.parseState(q.Get("state"))
	if err != nil || !crypto.TimingSafeEqual(stateID, cookie.Value) {
		s.writeError(w, r, apperr.Validation("invalid oauth state"))

		return
	}

	if err := s.identity.ConsumeOAuthState(r.Context(), stateID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			err = apperr.Validation("oauth state expired or already used")
		}

		s.writeError(w, r, err)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	code := q.Get("code")
	if code == "" {
		s.writeError(w, r, apperr.Validation("missing authorization code"))

		return
	}

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUpstream, "github authentication failed", err))

		return
	}

	session, err := s.completeLogin(r.Context(), tok)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.setSessionCookie(w, r, session)

	http.Redirect(w, r, s.cfg.Auth.GitHub.AppURL, http.StatusTemporaryRedirect)
}

type deviceCodeResponse struct {
	DeviceCode              string    `json:"deviceCode"`
	UserCode                string    `json:"userCode"`
	VerificationURI         string    `json:"verificationUri"`
	VerificationURIComplete string    `json:"verificationUriComplete,omitempty"`
	ExpiresAt               time.Time `json:"expiresAt"`
	Interval                int64     `json:"interval"`
}

// handleDeviceCode starts the GitHub device flow.
func (s *server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	da, err := s.oauth.DeviceAuth(r.Context())
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUpstream, "github device authorization failed", err))

		return
	}

	writeJSON(w, http.StatusOK, deviceCodeResponse{
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresAt:               da.Expiry,
		Interval:                da.Interval,
	})
}

type deviceTokenRequest struct {
	DeviceCode string `json:"deviceCode"`
	Interval   int64  `json:"interval"`
}

// handleDeviceToken polls GitHub once per interval for the device grant.
// While the user has not approved yet it answers 202 so the caller polls
// again.
func (s *server) handleDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	if req.DeviceCode == "" {
		s.writeError(w, r, apperr.Validation("deviceCode is required"))

		return
	}

	if req.Interval <= 0 {
		req.Interval = defaultDeviceInterval
	}

	pollCtx, cancel := context.WithTimeout(
		r.Context(), time.Duration(req.Interval)*time.Second+devicePollGrace,
	)
	defer cancel()

	tok, err := s.oauth.DeviceAccessToken(pollCtx, &oauth2.DeviceAuthResponse{
		DeviceCode: req.DeviceCode,
		Interval:   req.Interval,
	})
	if err != nil {
		var retrieveErr *oauth2.RetrieveError

		switch {
		case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "authorization_pending"})
		case errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "":
			s.writeError(w, r, apperr.Wrap(apperr.KindUnauthorized,
				"github device login failed: "+retrieveErr.ErrorCode, err))
		default:
			s.writeError(w, r, apperr.Wrap(apperr.KindUpstream, "github device login failed", err))
		}

		return
	}

	session, err := s.completeLogin(r.Context(), tok)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.setSessionCookie(w, r, session)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "complete",
		"userId":    session.UserID,
		"expiresAt": session.ExpiresAt,
	})
}

// handleLogout ends the caller's session, if any.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cfg.Auth.CookieName); err == nil && c.Value != "" {
		if err := s.identity.DeleteSession(r.Context(), c.Value); err != nil {
			s.log.WithError(err).Warn("Failed to delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe returns the caller's auth context.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authContext(r))
}

// completeLogin upserts the GitHub user with its sealed tokens and opens a
// session.
func (s *server) completeLogin(
	ctx context.Context, tok *oauth2.Token,
) (*identity.Session, error) {
	ghUser, err := s.github.ForToken(tok.AccessToken).GetAuthenticatedUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching github user: %w", err)
	}

	userID := strconv.FormatInt(ghUser.ID, 10)

	user, err := s.identity.GetUser(ctx, userID)

	switch {
	case errors.Is(err, identity.ErrNotFound):
		user = &identity.User{ID: userID}
	case err != nil:
		return nil, fmt.Errorf("loading user: %w", err)
	}

	user.GitHubUsername = ghUser.Login

	if err := auth.SealTokens(user, tok, s.cfg.Auth.EncryptionSecret); err != nil {
		return nil, err
	}

	if err := s.identity.PutUser(ctx, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	session, err := s.identity.CreateSession(ctx, userID, s.cfg.Auth.SessionTTLDuration())
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.log.WithField("user", ghUser.Login).Info("User signed in")

	return session, nil
}

func (s *server) setSessionCookie(
	w http.ResponseWriter, r *http.Request, session *identity.Session,
) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(r),
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})
}

func (s *server) secureCookies(r *http.Request) bool {
	return s.cfg.Auth.SecureCookies || r.TLS != nil
}

// signState wraps a state id in a short-lived HS256 token.
func (s *server) signState(stateID string, now time.Time) (string, error) {
	key, err := crypto.DeriveKey(s.cfg.Auth.TokenSecret, crypto.PurposeState)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		ID:        stateID,
		Issuer:    oauthStateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing oauth state: %w", err)
	}

	return signed, nil
}

// parseState verifies a state token and returns its id.
func (s *server) parseState(raw string) (string, error) {
	key, err := crypto.DeriveKey(s.cfg.Auth.TokenSecret, crypto.PurposeState)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims

	_, err = jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(oauthStateIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("parsing oauth state: %w", err)
	}

	if claims.ID == "" {
		return "", errors.New("oauth state has no id")
	}

	return claims.ID, nil
}
