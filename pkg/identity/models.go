package identity

import "time"

// User is a GitHub account that has logged in. Tokens are stored encrypted.
type User struct {
	ID                    string     `json:"githubUserId"`
	GitHubUsername        string     `json:"githubUsername"`
	EncryptedAccessToken  string     `json:"encryptedAccessToken"`
	EncryptedRefreshToken string     `json:"encryptedRefreshToken,omitempty"`
	TokenExpiresAt        *time.Time `json:"tokenExpiresAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Session is a browser login.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its validity window.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// APIToken is a scoped bearer credential. Only its id is ever shown again
// after creation; the signature is derived, not stored.
type APIToken struct {
	ID          string     `json:"tokenId"`
	UserID      string     `json:"userId"`
	Name        string     `json:"name"`
	Repos       []string   `json:"repos"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
}

// Expired reports whether the token has an expiry in the past.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// RepoConnection is a repository a user has connected to the CMS. An empty
// AddedBy marks a legacy entry from before connections had owners.
type RepoConnection struct {
	FullName string    `json:"fullName"`
	AddedAt  time.Time `json:"addedAt"`
	AddedBy  string    `json:"addedBy,omitempty"`
}

// Legacy reports whether the connection has no owner.
func (c *RepoConnection) Legacy() bool {
	return c.AddedBy == ""
}
