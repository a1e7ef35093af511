package workflow

import (
	"path"
	"regexp"
	"strings"

	"github.com/ethpandaops/contentoor/pkg/apperr"
)

// BranchPrefix starts every review branch name.
const BranchPrefix = "cms/"

const contentExt = ".md"

var (
	collectionPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	repoPattern       = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// FormatBranch returns the review branch for a content item.
func FormatBranch(collection, slug string) string {
	return BranchPrefix + collection + "/" + slug
}

// ParseBranch splits a review branch into collection and slug. The slug may
// contain slashes; only the first slash after the collection separates them.
func ParseBranch(branch string) (collection, slug string, ok bool) {
	rest, found := strings.CutPrefix(branch, BranchPrefix)
	if !found {
		return "", "", false
	}

	collection, slug, found = strings.Cut(rest, "/")
	if !found || collection == "" || slug == "" {
		return "", "", false
	}

	return collection, slug, true
}

// PreviewURL derives the preview deployment URL of a branch. It returns ""
// when no project is configured.
func PreviewURL(branch, project, domain string) string {
	if project == "" {
		return ""
	}

	alias := strings.ToLower(strings.ReplaceAll(branch, "/", "-"))

	return "https://" + alias + "." + project + "." + domain
}

// ValidateCollection checks a collection name.
func ValidateCollection(collection string) error {
	if !collectionPattern.MatchString(collection) {
		return apperr.Validationf("invalid collection %q", collection)
	}

	return nil
}

// ValidateSlug checks a slug. Slugs may be nested with "/" but every
// segment must be non-empty and must not navigate upwards.
func ValidateSlug(slug string) error {
	if slug == "" || strings.HasSuffix(slug, contentExt) {
		return apperr.Validationf("invalid slug %q", slug)
	}

	for _, seg := range strings.Split(slug, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "\\\x00") {
			return apperr.Validationf("invalid slug %q", slug)
		}
	}

	return nil
}

// ValidateRepo checks an "owner/repo" name.
func ValidateRepo(repo string) error {
	if !repoPattern.MatchString(repo) || strings.Contains(repo, "..") {
		return apperr.Validationf("invalid repository %q", repo)
	}

	return nil
}

// ContentPath returns the repository path of a content item.
func ContentPath(root, collection, slug string) string {
	return path.Join(root, collection, slug+contentExt)
}

// CollectionPath returns the repository directory of a collection.
func CollectionPath(root, collection string) string {
	return path.Join(root, collection)
}

// ParseContentPath reverses ContentPath for files under root.
func ParseContentPath(root, file string) (collection, slug string, ok bool) {
	prefix := strings.Trim(root, "/")
	if prefix != "" {
		prefix += "/"
	}

	rest, found := strings.CutPrefix(file, prefix)
	if !found || !strings.HasSuffix(rest, contentExt) {
		return "", "", false
	}

	collection, slug, found = strings.Cut(strings.TrimSuffix(rest, contentExt), "/")
	if !found || collection == "" || slug == "" {
		return "", "", false
	}

	return collection, slug, true
}
