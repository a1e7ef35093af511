package auth

import (
	"fmt"

	"github.com/ethpandaops/contentoor/pkg/apperr"
)

// RequirePermission fails with Forbidden naming the first permission in
// needed that ac lacks. Sessions always pass.
func RequirePermission(ac *Context, needed ...Permission) error {
	if ac == nil {
		return apperr.Unauthorized("authentication required")
	}

	for _, p := range needed {
		if !ac.HasPermission(p) {
			return apperr.Forbidden(fmt.Sprintf("token lacks permission %s", p))
		}
	}

	return nil
}

// RequireRepoAccess fails with Forbidden naming repo when an API token's
// scope does not include it. Sessions always pass.
func RequireRepoAccess(ac *Context, repo string) error {
	if ac == nil {
		return apperr.Unauthorized("authentication required")
	}

	if !ac.CanAccessRepo(repo) {
		return apperr.Forbidden(fmt.Sprintf("token is not scoped to repository %s", repo))
	}

	return nil
}

// RequireSession rejects API token contexts.
func RequireSession(ac *Context) error {
	if ac == nil {
		return apperr.Unauthorized("authentication required")
	}

	if !ac.IsSession() {
		return apperr.Forbidden("this operation requires a browser session, not an api token")
	}

	return nil
}
