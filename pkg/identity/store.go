// Package identity persists users, sessions, API tokens and repo
// connections on top of the key-value store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/contentoor/pkg/crypto"
	"github.com/ethpandaops/contentoor/pkg/kv"
)

// ErrNotFound is returned when a record is absent, expired or owned by a
// different user.
var ErrNotFound = errors.New("identity: not found")

const (
	sessionIDBytes = 32
	oauthStateTTL  = 10 * time.Minute

	repoConnectionsKey = "repo-connections"
)

func userKey(id string) string { return "user:" + id }
func sessionKey(id string) string { return "session:" + id }
func apiTokenKey(id string) string { return "api-token:" + id }
func userTokensKey(id string) string { return "user-api-tokens:" + id }
func oauthStateKey(id string) string { return "oauth-state:" + id }

// Store provides persistence for identity records.
type Store interface {
	// Users.
	GetUser(ctx context.Context, id string) (*User, error)
	PutUser(ctx context.Context, user *User) error

	// Sessions.
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// API tokens.
	CreateAPIToken(ctx context.Context, token *APIToken) error
	GetAPIToken(ctx context.Context, id string) (*APIToken, error)
	ListAPITokens(ctx context.Context, userID string) ([]APIToken, error)
	RevokeAPIToken(ctx context.Context, userID, tokenID string) error
	TouchAPIToken(ctx context.Context, tokenID string, at time.Time) error

	// Repo connections.
	ListRepoConnections(ctx context.Context, userID string) ([]RepoConnection, error)
	AddRepoConnection(ctx context.Context, userID, fullName string) (*RepoConnection, error)
	RemoveRepoConnection(ctx context.Context, userID, fullName string) error

	// OAuth login state.
	SaveOAuthState(ctx context.Context, id string) error
	ConsumeOAuthState(ctx context.Context, id string) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	kv  kv.Store
	now func() time.Time
}

// NewStore creates an identity store over the given key-value store.
func NewStore(log logrus.FieldLogger, kvStore kv.Store) Store {
	return &store{
		log: log.WithField("component", "identity"),
		kv:  kvStore,
		now: time.Now,
	}
}

// getJSON maps kv.ErrNotFound onto ErrNotFound.
func (s *store) getJSON(ctx context.Context, key string, dest any) error {
	if err := s.kv.GetJSON(ctx, key, dest); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("reading %s: %w", key, err)
	}

	return nil
}

// --- Users ---

func (s *store) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.getJSON(ctx, userKey(id), &user); err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *store) PutUser(ctx context.Context, user *User) error {
	now := s.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	user.UpdatedAt = now

	if err := kv.PutJSON(ctx, s.kv, userKey(user.ID), user, 0); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}

	return nil
}

// --- Sessions ---

func (s *store) CreateSession(
	ctx context.Context, userID string, ttl time.Duration,
) (*Session, error) {
	id, err := crypto.GenerateRandomHex(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := s.now().UTC()
	session := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := kv.PutJSON(ctx, s.kv, sessionKey(id), session, ttl); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return session, nil
}

func (s *store) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := s.getJSON(ctx, sessionKey(id), &session); err != nil {
		return nil, err
	}

	session.ID = id

	return &session, nil
}

func (s *store) DeleteSession(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// --- API tokens ---

func (s *store) CreateAPIToken(ctx context.Context, token *APIToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now().UTC()
	}

	if err := s.putAPIToken(ctx, token); err != nil {
		return fmt.Errorf("creating api token: %w", err)
	}

	ids, err := s.tokenIDs(ctx, token.UserID)
	if err != nil {
		return err
	}

	ids = append(ids, token.ID)

	if err := kv.PutJSON(ctx, s.kv, userTokensKey(token.UserID), ids, 0); err != nil {
		return fmt.Errorf("indexing api token: %w", err)
	}

	return nil
}

// putAPIToken stores the record with a TTL matching its expiry.
func (s *store) putAPIToken(ctx context.Context, token *APIToken) error {
	var ttl time.Duration

	if token.ExpiresAt != nil {
		ttl = token.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return fmt.Errorf("api token %s already expired", token.ID)
		}
	}

	return kv.PutJSON(ctx, s.kv, apiTokenKey(token.ID), token, ttl)
}

func (s *store) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	var token APIToken
	if err := s.getJSON(ctx, apiTokenKey(id), &token); err != nil {
		return nil, err
	}

	return &token, nil
}

// ListAPITokens returns the user's live tokens and prunes index entries
// whose records have expired.
func (s *store) ListAPITokens(ctx context.Context, userID string) ([]APIToken, error) {
	ids, err := s.tokenIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	tokens := make([]APIToken, 0, len(ids))
	live := make([]string, 0, len(ids))

	for _, id := range ids {
		token, err := s.GetAPIToken(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		tokens = append(tokens, *token)
		live = append(live, id)
	}

	if len(live) != len(ids) {
		if err := kv.PutJSON(ctx, s.kv, userTokensKey(userID), live, 0); err != nil {
			s.log.WithError(err).WithField("user_id", userID).
				Warn("Failed to prune api token index")
		}
	}

	return tokens, nil
}

// RevokeAPIToken deletes a token owned by userID. Tokens owned by other
// users are reported as ErrNotFound.
func (s *store) RevokeAPIToken(ctx context.Context, userID, tokenID string) error {
	token, err := s.GetAPIToken(ctx, tokenID)
	if err != nil {
		return err
	}

	if token.UserID != userID {
		return ErrNotFound
	}

	if err := s.kv.Delete(ctx, apiTokenKey(tokenID)); err != nil {
		return fmt.Errorf("deleting api token: %w", err)
	}

	ids, err := s.tokenIDs(ctx, userID)
	if err != nil {
		return err
	}

	ids = slices.DeleteFunc(ids, func(id string) bool { return id == tokenID })

	if err := kv.PutJSON(ctx, s.kv, userTokensKey(userID), ids, 0); err != nil {
		return fmt.Errorf("updating api token index: %w", err)
	}

	return nil
}

// TouchAPIToken records a use of the token. Concurrent touches may race;
// the last write wins. The write only lands on a token that still exists,
// so a touch racing a revoke cannot bring the token back.
func (s *store) TouchAPIToken(ctx context.Context, tokenID string, at time.Time) error {
	token, err := s.GetAPIToken(ctx, tokenID)
	if err != nil {
		return err
	}

	at = at.UTC()
	token.LastUsedAt = &at

	if err := kv.ReplaceJSON(ctx, s.kv, apiTokenKey(tokenID), token); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("updating api token: %w", err)
	}

	return nil
}

func (s *store) tokenIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := s.getJSON(ctx, userTokensKey(userID), &ids); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return ids, nil
}

// --- Repo connections ---

func (s *store) connections(ctx context.Context) ([]RepoConnection, error) {
	var conns []RepoConnection
	if err := s.getJSON(ctx, repoConnectionsKey, &conns); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return conns, nil
}

// ListRepoConnections returns the user's own connections plus legacy
// unowned ones.
func (s *store) ListRepoConnections(
	ctx context.Context, userID string,
) ([]RepoConnection, error) {
	conns, err := s.connections(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]RepoConnection, 0, len(conns))

	for _, c := range conns {
		if c.Legacy() || c.AddedBy == userID {
			visible = append(visible, c)
		}
	}

	return visible, nil
}

// AddRepoConnection connects fullName for userID. Re-adding an owned entry
// is a no-op; re-adding a legacy entry claims it.
func (s *store) AddRepoConnection(
	ctx context.Context, userID, fullName string,
) (*RepoConnection, error) {
	conns, err := s.connections(ctx)
	if err != nil {
		return nil, err
	}

	for i := range conns {
		if conns[i].FullName == fullName && conns[i].AddedBy == userID {
			return &conns[i], nil
		}
	}

	var added *RepoConnection

	for i := range conns {
		if conns[i].FullName == fullName && conns[i].Legacy() {
			conns[i].AddedBy = userID
			added = &conns[i]

			break
		}
	}

	if added == nil {
		conns = append(conns, RepoConnection{
			FullName: fullName,
			AddedAt:  s.now().UTC(),
			AddedBy:  userID,
		})
		added = &conns[len(conns)-1]
	}

	if err := kv.PutJSON(ctx, s.kv, repoConnectionsKey, conns, 0); err != nil {
		return nil, fmt.Errorf("storing repo connections: %w", err)
	}

	return added, nil
}

// RemoveRepoConnection removes the user's own connection to fullName.
func (s *store) RemoveRepoConnection(ctx context.Context, userID, fullName string) error {
	conns, err := s.connections(ctx)
	if err != nil {
		return err
	}

	n := len(conns)
	conns = slices.DeleteFunc(conns, func(c RepoConnection) bool {
		return c.FullName == fullName && c.AddedBy == userID
	})

	if len(conns) == n {
		return ErrNotFound
	}

	if err := kv.PutJSON(ctx, s.kv, repoConnectionsKey, conns, 0); err != nil {
		return fmt.Errorf("storing repo connections: %w", err)
	}

	return nil
}

// --- OAuth state ---

func (s *store) SaveOAuthState(ctx context.Context, id string) error {
	if err := s.kv.Put(ctx, oauthStateKey(id), "1", oauthStateTTL); err != nil {
		return fmt.Errorf("storing oauth state: %w", err)
	}

	return nil
}

// ConsumeOAuthState deletes a stored state, failing with ErrNotFound when
// it was never issued, already used or expired.
func (s *store) ConsumeOAuthState(ctx context.Context, id string) error {
	if _, err := s.kv.GetText(ctx, oauthStateKey(id)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("reading oauth state: %w", err)
	}

	if err := s.kv.Delete(ctx, oauthStateKey(id)); err != nil {
		return fmt.Errorf("deleting oauth state: %w", err)
	}

	return nil
}
