// Package contentdiff renders the differences between two versions of a
// markdown document: a word-level body diff and a per-field frontmatter diff.
package contentdiff

import (
	"strings"
	"unicode"
)

// SegmentType labels a run of tokens in a word diff.
type SegmentType string

const (
	SegmentEqual   SegmentType = "equal"
	SegmentAdded   SegmentType = "added"
	SegmentRemoved SegmentType = "removed"
)

// Segment is a contiguous run of text with one diff type.
type Segment struct {
	Type SegmentType `json:"type"`
	Text string      `json:"text"`
}

// Tokenize splits s into alternating runs of whitespace and non-whitespace.
// Concatenating the tokens yields s.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, len(s)/4+1)
	start := 0
	inSpace := false

	for i, r := range s {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space

			continue
		}

		if space != inSpace {
			tokens = append(tokens, s[start:i])
			start = i
			inSpace = space
		}
	}

	return append(tokens, s[start:])
}

// WordDiff diffs two texts token by token using a longest common
// subsequence. Cost is O(m·n) in token counts; callers bound their inputs.
func WordDiff(oldText, newText string) []Segment {
	a := Tokenize(oldText)
	b := Tokenize(newText)

	segments := make([]Segment, 0, 8)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	segments = appendTokens(segments, SegmentEqual, a[:prefix])
	segments = appendLCS(segments, a[prefix:len(a)-suffix], b[prefix:len(b)-suffix])
	segments = appendTokens(segments, SegmentEqual, a[len(a)-suffix:])

	return segments
}

// appendLCS appends the edit script turning a into b.
func appendLCS(segments []Segment, a, b []string) []Segment {
	m, n := len(a), len(b)
	width := n + 1

	// lcs[i*width+j] is the LCS length of a[i:] and b[j:].
	lcs := make([]int32, (m+1)*width)

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				lcs[i*width+j] = lcs[(i+1)*width+j+1] + 1
			case lcs[(i+1)*width+j] >= lcs[i*width+j+1]:
				lcs[i*width+j] = lcs[(i+1)*width+j]
			default:
				lcs[i*width+j] = lcs[i*width+j+1]
			}
		}
	}

	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			segments = appendSegment(segments, SegmentEqual, a[i])
			i++
			j++
		case lcs[(i+1)*width+j] >= lcs[i*width+j+1]:
			segments = appendSegment(segments, SegmentRemoved, a[i])
			i++
		default:
			segments = appendSegment(segments, SegmentAdded, b[j])
			j++
		}
	}

	segments = appendTokens(segments, SegmentRemoved, a[i:])

	return appendTokens(segments, SegmentAdded, b[j:])
}

func appendTokens(segments []Segment, t SegmentType, tokens []string) []Segment {
	if len(tokens) == 0 {
		return segments
	}

	return appendSegment(segments, t, strings.Join(tokens, ""))
}

// appendSegment merges text into the last segment when the types match.
func appendSegment(segments []Segment, t SegmentType, text string) []Segment {
	if n := len(segments); n > 0 && segments[n-1].Type == t {
		segments[n-1].Text += text

		return segments
	}

	return append(segments, Segment{Type: t, Text: text})
}
