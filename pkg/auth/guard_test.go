package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/auth"
)

func tokenContext(repos []string, perms ...auth.Permission) *auth.Context {
	return &auth.Context{
		UserID: "1001",
		Method: auth.MethodAPIToken,
		Scope:  &auth.Scope{Repos: repos, Permissions: perms},
	}
}

func sessionContext() *auth.Context {
	return &auth.Context{UserID: "1001", Method: auth.MethodSession}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name    string
		ac      *auth.Context
		needed  []auth.Permission
		allowed bool
		missing auth.Permission
	}{
		{
			name:    "session passes everything",
			ac:      sessionContext(),
			needed:  auth.AllPermissions,
			allowed: true,
		},
		{
			name:    "token with the permission",
			ac:      tokenContext([]string{"*"}, auth.PermContentRead),
			needed:  []auth.Permission{auth.PermContentRead},
			allowed: true,
		},
		{
			name:    "token missing the permission",
			ac:      tokenContext([]string{"*"}, auth.PermContentRead),
			needed:  []auth.Permission{auth.PermContentWrite},
			missing: auth.PermContentWrite,
		},
		{
			name:    "all needed permissions are required",
			ac:      tokenContext([]string{"*"}, auth.PermContentRead, auth.PermContentWrite),
			needed:  []auth.Permission{auth.PermContentWrite, auth.PermContentPublish},
			missing: auth.PermContentPublish,
		},
		{
			name:    "first missing permission is reported",
			ac:      tokenContext([]string{"*"}),
			needed:  []auth.Permission{auth.PermConfigRead, auth.PermReposRead},
			missing: auth.PermConfigRead,
		},
		{
			name:    "token with nil scope",
			ac:      &auth.Context{Method: auth.MethodAPIToken},
			needed:  []auth.Permission{auth.PermContentRead},
			missing: auth.PermContentRead,
		},
		{
			name:    "no permissions needed",
			ac:      tokenContext(nil),
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.RequirePermission(tt.ac, tt.needed...)
			if tt.allowed {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindForbidden))
			assert.Contains(t, apperr.PublicMessage(err), string(tt.missing))
		})
	}
}

func TestRequireRepoAccess(t *testing.T) {
	tests := []struct {
		name    string
		ac      *auth.Context
		repo    string
		allowed bool
	}{
		{name: "session", ac: sessionContext(), repo: "acme/site", allowed: true},
		{name: "wildcard", ac: tokenContext([]string{"*"}), repo: "acme/site", allowed: true},
		{name: "exact match", ac: tokenContext([]string{"acme/site"}), repo: "acme/site", allowed: true},
		{name: "one of many", ac: tokenContext([]string{"acme/a", "acme/site"}), repo: "acme/site", allowed: true},
		{name: "prefix is not a match", ac: tokenContext([]string{"owner/repo"}), repo: "owner/repo-extended"},
		{name: "longer scope is not a match", ac: tokenContext([]string{"owner/repo-extended"}), repo: "owner/repo"},
		{name: "case sensitive", ac: tokenContext([]string{"Acme/Site"}), repo: "acme/site"},
		{name: "empty scope", ac: tokenContext([]string{}), repo: "acme/site"},
		{name: "nil scope", ac: &auth.Context{Method: auth.MethodAPIToken}, repo: "acme/site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.RequireRepoAccess(tt.ac, tt.repo)
			if tt.allowed {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindForbidden))
			assert.Contains(t, apperr.PublicMessage(err), tt.repo)
		})
	}
}

func TestRequireSession(t *testing.T) {
	require.NoError(t, auth.RequireSession(sessionContext()))

	err := auth.RequireSession(tokenContext([]string{"*"}, auth.AllPermissions...))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	err = auth.RequireSession(nil)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestGuards_ComposeInOrder(t *testing.T) {
	ac := tokenContext([]string{"acme/a"}, auth.PermContentRead)

	check := func(repo string, perms ...auth.Permission) error {
		if err := auth.RequirePermission(ac, perms...); err != nil {
			return err
		}

		return auth.RequireRepoAccess(ac, repo)
	}

	err := check("acme/b", auth.PermContentWrite)
	require.Error(t, err)
	assert.Contains(t, apperr.PublicMessage(err), "content:write")
	assert.NotContains(t, apperr.PublicMessage(err), "acme/b")

	err = check("acme/b", auth.PermContentRead)
	require.Error(t, err)
	assert.Contains(t, apperr.PublicMessage(err), "acme/b")

	require.NoError(t, check("acme/a", auth.PermContentRead))
}

func TestParsePermissions(t *testing.T) {
	perms, err := auth.ParsePermissions([]string{"content:read", "repos:read", "content:read"})
	require.NoError(t, err)
	assert.Equal(t, []auth.Permission{auth.PermContentRead, auth.PermReposRead}, perms)

	_, err = auth.ParsePermissions([]string{"content:read", "content:admin"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, apperr.PublicMessage(err), "content:admin")

	_, err = auth.ParsePermissions(nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
