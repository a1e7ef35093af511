package contentdiff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NoValue is shown for a field missing on one side of a diff.
const NoValue = "(no value)"

const delimiter = "---"

// Frontmatter is a document's metadata block. Field definitions are owned
// by the repository config, so values stay dynamic.
type Frontmatter map[string]any

// SplitFrontmatter separates a leading YAML block delimited by "---" lines
// from the body. Documents without a block return a nil map and the whole
// input as the body.
func SplitFrontmatter(doc string) (Frontmatter, string, error) {
	normalized := strings.ReplaceAll(doc, "\r\n", "\n")

	rest, ok := strings.CutPrefix(normalized, delimiter+"\n")
	if !ok {
		return nil, doc, nil
	}

	var block, body string

	switch {
	case strings.HasPrefix(rest, delimiter+"\n") || rest == delimiter:
		body = strings.TrimPrefix(strings.TrimPrefix(rest, delimiter), "\n")
	default:
		end := strings.Index(rest, "\n"+delimiter+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+delimiter) {
				return nil, doc, nil
			}

			end = len(rest) - len(delimiter) - 1
			block, body = rest[:end], ""
		} else {
			block, body = rest[:end], rest[end+len(delimiter)+2:]
		}
	}

	fm := Frontmatter{}
	if strings.TrimSpace(block) != "" {
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			return nil, doc, fmt.Errorf("parsing frontmatter: %w", err)
		}
	}

	return fm, body, nil
}

// FieldDiff compares one frontmatter field. Values are rendered for
// display; a missing side shows NoValue.
type FieldDiff struct {
	Name     string `json:"name"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
	Changed  bool   `json:"changed"`
}

// FrontmatterDiff lists every field present on either side, sorted by name.
type FrontmatterDiff struct {
	Fields []FieldDiff `json:"fields"`
}

// DiffFrontmatter compares two frontmatter maps. A field is changed when
// its JSON encodings differ; absent and null are distinct.
func DiffFrontmatter(oldFM, newFM Frontmatter) FrontmatterDiff {
	names := make(map[string]struct{}, len(oldFM)+len(newFM))
	for k := range oldFM {
		names[k] = struct{}{}
	}

	for k := range newFM {
		names[k] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}

	sort.Strings(sorted)

	fields := make([]FieldDiff, 0, len(sorted))

	for _, name := range sorted {
		oldVal, oldOK := oldFM[name]
		newVal, newOK := newFM[name]

		oldJSON := encodeValue(oldVal, oldOK)
		newJSON := encodeValue(newVal, newOK)

		fields = append(fields, FieldDiff{
			Name:     name,
			OldValue: displayValue(oldVal, oldOK, oldJSON),
			NewValue: displayValue(newVal, newOK, newJSON),
			Changed:  oldOK != newOK || !bytes.Equal(oldJSON, newJSON),
		})
	}

	return FrontmatterDiff{Fields: fields}
}

func encodeValue(v any, present bool) []byte {
	if !present {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%#v", v))
	}

	return data
}

func displayValue(v any, present bool, encoded []byte) string {
	if !present {
		return NoValue
	}

	if s, ok := v.(string); ok {
		return s
	}

	return string(encoded)
}
