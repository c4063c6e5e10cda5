package markdown

import (
	"fmt"
	"regexp"
)

// Direction selects the canonical output form of a rewrite. All three
// input forms collapse to a single canonical form; the original form is
// not preserved. In particular, downloading an image that was previously
// uploaded does not restore the pre-upload reference text.
type Direction int

const (
	// ToRemote rewrites a reference to point at a remote URL using the
	// canonical markdown link form ![](url).
	ToRemote Direction = iota

	// ToLocal rewrites a reference to point at a local file using the
	// canonical wiki embed form ![[name]].
	ToLocal
)

// Rewrite replaces every reference to rawPath in text, in any of the
// three supported forms, with a canonical reference to replacement.
// The raw path is escaped for literal matching, so reserved pattern
// characters in filenames cannot corrupt the match. Applying the same
// rewrite twice yields the same text as applying it once.
func Rewrite(text, rawPath, replacement string, dir Direction) string {
	quoted := regexp.QuoteMeta(rawPath)

	pattern := regexp.MustCompile(
		`!\[[^\]\[]*\]\(` + quoted + `\)` +
			`|<img[^>]*\ssrc=["']` + quoted + `["'][^>]*/?>` +
			`|!\[\[` + quoted + `\]\]`,
	)

	var canonical string

	switch dir {
	case ToLocal:
		canonical = fmt.Sprintf("![[%s]]", replacement)
	default:
		canonical = fmt.Sprintf("![](%s)", replacement)
	}

	return pattern.ReplaceAllLiteralString(text, canonical)
}
