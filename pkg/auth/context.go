// Package auth resolves request credentials into an immutable Context and
// checks permissions and repo scope against it.
package auth

import (
	"context"
	"slices"
)

// Method is how a request authenticated.
type Method string

const (
	MethodSession  Method = "session"
	MethodAPIToken Method = "api-token"
)

// Scope limits what an API token may touch. Repos holds "*" or exact
// "owner/repo" names.
type Scope struct {
	Repos       []string     `json:"repos"`
	Permissions []Permission `json:"permissions"`
}

// Context is the resolved identity of one request. Session contexts carry
// no Scope.
type Context struct {
	UserID         string `json:"userId"`
	GitHubUsername string `json:"githubUsername"`
	GitHubToken    string `json:"-"`
	Method         Method `json:"authMethod"`
	Scope          *Scope `json:"tokenScope,omitempty"`
	TokenID        string `json:"tokenId,omitempty"`
}

// IsSession reports whether the request authenticated with a session.
func (c *Context) IsSession() bool {
	return c.Method == MethodSession
}

// HasPermission reports whether the context grants p.
func (c *Context) HasPermission(p Permission) bool {
	if c.IsSession() {
		return true
	}

	return c.Scope != nil && slices.Contains(c.Scope.Permissions, p)
}

// CanAccessRepo reports whether the context may act on repo. Matching is
// exact; "*" grants every repository.
func (c *Context) CanAccessRepo(repo string) bool {
	if c.IsSession() {
		return true
	}

	if c.Scope == nil {
		return false
	}

	for _, r := range c.Scope.Repos {
		if r == "*" || r == repo {
			return true
		}
	}

	return false
}

type contextKey struct{}

// WithContext attaches ac to ctx.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the Context attached to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(*Context)

	return ac, ok && ac != nil
}
