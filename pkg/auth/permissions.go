package auth

import (
	"slices"

	"github.com/ethpandaops/contentoor/pkg/apperr"
)

// Permission is a capability an API token can be granted.
type Permission string

const (
	PermContentRead    Permission = "content:read"
	PermContentWrite   Permission = "content:write"
	PermContentDelete  Permission = "content:delete"
	PermContentPublish Permission = "content:publish"
	PermConfigRead     Permission = "config:read"
	PermReposRead      Permission = "repos:read"
)

// AllPermissions is the closed permission vocabulary.
var AllPermissions = []Permission{
	PermContentRead,
	PermContentWrite,
	PermContentDelete,
	PermContentPublish,
	PermConfigRead,
	PermReposRead,
}

// Valid reports whether p is part of the vocabulary.
func (p Permission) Valid() bool {
	return slices.Contains(AllPermissions, p)
}

// ParsePermissions validates and de-duplicates a requested permission set.
func ParsePermissions(raw []string) ([]Permission, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("at least one permission is required")
	}

	perms := make([]Permission, 0, len(raw))

	for _, r := range raw {
		p := Permission(r)
		if !p.Valid() {
			return nil, apperr.Validationf("unknown permission %q", r)
		}

		if !slices.Contains(perms, p) {
			perms = append(perms, p)
		}
	}

	return perms, nil
}

// PermissionStrings converts permissions for storage.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}

	return out
}
