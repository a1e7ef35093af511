package contentdiff

// ChangeType is how a document changed between two refs.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// BodyDiff carries both bodies and, when they are small enough, the word
// diff between them.
type BodyDiff struct {
	OldBody  string    `json:"oldBody"`
	NewBody  string    `json:"newBody"`
	Segments []Segment `json:"segments,omitempty"`
	Bounded  bool      `json:"bounded,omitempty"`
}

// ContentDiff is the structured change to one content document.
type ContentDiff struct {
	Collection  string          `json:"collection"`
	Slug        string          `json:"slug"`
	Type        ChangeType      `json:"type"`
	Frontmatter FrontmatterDiff `json:"frontmatter"`
	Body        BodyDiff        `json:"body"`
}

// Compute diffs two versions of a document. A nil side is absent. Word
// segments are skipped when either body exceeds maxTokens tokens; a
// non-positive maxTokens disables the bound.
func Compute(collection, slug string, oldDoc, newDoc *string, maxTokens int) *ContentDiff {
	d := &ContentDiff{
		Collection: collection,
		Slug:       slug,
		Type:       ChangeModified,
	}

	switch {
	case oldDoc == nil:
		d.Type = ChangeAdded
	case newDoc == nil:
		d.Type = ChangeDeleted
	}

	oldFM, oldBody := split(oldDoc)
	newFM, newBody := split(newDoc)

	d.Frontmatter = DiffFrontmatter(oldFM, newFM)
	d.Body = BodyDiff{OldBody: oldBody, NewBody: newBody}

	if maxTokens > 0 &&
		(len(Tokenize(oldBody)) > maxTokens || len(Tokenize(newBody)) > maxTokens) {
		d.Body.Bounded = true

		return d
	}

	d.Body.Segments = WordDiff(oldBody, newBody)

	return d
}

// split tolerates malformed frontmatter by treating the whole document as
// body.
func split(doc *string) (Frontmatter, string) {
	if doc == nil {
		return nil, ""
	}

	fm, body, err := SplitFrontmatter(*doc)
	if err != nil {
		return nil, *doc
	}

	return fm, body
}
