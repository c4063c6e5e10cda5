// Package markdown finds and rewrites image references in note text.
// It is not a markdown parser; only the three image reference syntaxes
// are recognized.
package markdown

import (
	"regexp"
	"strings"
)

// Form identifies the syntax an image reference was written in.
type Form int

const (
	// FormMarkdown is a standard markdown image: ![alt](path).
	FormMarkdown Form = iota

	// FormHTML is an inline <img src="path"> tag.
	FormHTML

	// FormWiki is an Obsidian wiki embed: ![[path]].
	FormWiki
)

// Reference is a single image reference found in note text. RawPath is
// the literal path or URL string as it appears in the source, unmodified.
type Reference struct {
	Form        Form
	RawPath     string
	MatchedText string
}

// Filter selects which references Extract returns.
type Filter struct {
	mode   int
	origin string
}

const (
	filterAll = iota
	filterLocal
	filterRemote
)

// All matches every image reference.
func All() Filter { return Filter{mode: filterAll} }

// Local matches references to local files: anything that is not an
// http(s) URL, a protocol-relative URL, or a data: URI.
func Local() Filter { return Filter{mode: filterLocal} }

// RemoteOrigin matches references whose path starts with the given
// scheme://host origin.
func RemoteOrigin(origin string) Filter {
	return Filter{mode: filterRemote, origin: origin}
}

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]\[]*\]\(([^()\n]+)\)`)
	htmlImageRe     = regexp.MustCompile(`<img[^>]*\ssrc=["']([^"']+)["'][^>]*/?>`)
	wikiEmbedRe     = regexp.MustCompile(`!\[\[([^\]\n]+)\]\]`)
)

// IsLocalPath reports whether a raw reference path points at a local
// file rather than a URL.
func IsLocalPath(raw string) bool {
	return !strings.HasPrefix(raw, "http://") &&
		!strings.HasPrefix(raw, "https://") &&
		!strings.HasPrefix(raw, "//") &&
		!strings.HasPrefix(raw, "data:")
}

// Extract scans text for image references matching the filter. The three
// forms are scanned independently in a fixed precedence (markdown, HTML,
// wiki) and the results merged, de-duplicated by raw path. The input is
// never mutated, so Extract can safely be re-run on the same text.
func Extract(text string, filter Filter) []Reference {
	var refs []Reference

	seen := make(map[string]struct{})

	scan := func(re *regexp.Regexp, form Form) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := strings.TrimSpace(m[1])
			if raw == "" {
				continue
			}

			if !filter.matches(raw) {
				continue
			}

			if _, dup := seen[raw]; dup {
				continue
			}

			seen[raw] = struct{}{}
			refs = append(refs, Reference{
				Form:        form,
				RawPath:     raw,
				MatchedText: m[0],
			})
		}
	}

	scan(markdownImageRe, FormMarkdown)
	scan(htmlImageRe, FormHTML)
	scan(wikiEmbedRe, FormWiki)

	return refs
}

func (f Filter) matches(raw string) bool {
	switch f.mode {
	case filterLocal:
		return IsLocalPath(raw)
	case filterRemote:
		return f.origin != "" && strings.HasPrefix(raw, f.origin)
	default:
		return true
	}
}
