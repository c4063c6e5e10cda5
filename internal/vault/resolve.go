package vault

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	apperrors "github.com/Missiu/lsky-uploader/internal/errors"
)

// Resolver turns raw image reference paths into vault-relative paths of
// files that actually exist. Notes written by different tools disagree
// on path conventions (relative to note, relative to vault root, bare
// attachment folder names, percent-encoded spaces), so resolution tries
// an ordered list of candidate locations and falls back to a vault-wide
// basename search.
type Resolver struct {
	store *Store

	// attachmentFolder is the conventional attachment folder name tried
	// when generating candidates, "attachments" by default.
	attachmentFolder string
}

// NewResolver creates a Resolver over the given store. attachmentFolder
// may be empty, in which case "attachments" is used.
func NewResolver(store *Store, attachmentFolder string) *Resolver {
	if attachmentFolder == "" {
		attachmentFolder = "attachments"
	}

	return &Resolver{store: store, attachmentFolder: attachmentFolder}
}

// cleanRef normalizes a raw reference path before resolution: converts
// backslashes, strips wiki brackets, a leading "./", and surrounding
// whitespace. Percent decoding is handled separately so both the raw and
// decoded variants can be tried.
func cleanRef(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\\", "/")
	raw = strings.TrimPrefix(raw, "[[")
	raw = strings.TrimSuffix(raw, "]]")
	raw = strings.TrimPrefix(raw, "./")

	return strings.TrimSpace(raw)
}

// decodeRef percent-decodes a cleaned reference path. %20 is always
// decoded; a full percent-decode is attempted on top and the %20-decoded
// form is kept when the full decode fails (malformed escapes are common
// in hand-edited notes).
func decodeRef(cleaned string) string {
	decoded := strings.ReplaceAll(cleaned, "%20", " ")

	if full, err := url.PathUnescape(cleaned); err == nil {
		return full
	}

	return decoded
}

// Resolve returns the primary candidate location for a raw reference:
// an absolute path (leading slash) is relative to the vault root, any
// other path is relative to the note's containing folder. The result is
// not guaranteed to exist; Locate handles fallbacks.
func (r *Resolver) Resolve(rawPath, notePath string) string {
	return r.primary(decodeRef(cleanRef(rawPath)), notePath)
}

func (r *Resolver) primary(ref, notePath string) string {
	if strings.HasPrefix(ref, "/") {
		return NormalizePath(strings.TrimPrefix(ref, "/"))
	}

	return NormalizePath(path.Join(path.Dir(notePath), ref))
}

// Candidates returns the ordered list of locations tried for a raw
// reference, generated from both the raw and percent-decoded variants.
func (r *Resolver) Candidates(rawPath, notePath string) []string {
	cleaned := cleanRef(rawPath)
	decoded := decodeRef(cleaned)

	variants := []string{cleaned}
	if decoded != cleaned {
		variants = append(variants, decoded)
	}

	noteDir := path.Dir(notePath)
	noteBase := strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))

	var out []string

	seen := make(map[string]struct{})

	add := func(p string) {
		p = NormalizePath(p)
		if p == "" {
			return
		}

		if _, dup := seen[p]; dup {
			return
		}

		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, v := range variants {
		bare := strings.TrimPrefix(v, "/")

		// Primary resolution result first.
		add(r.primary(v, notePath))

		// Attachment folder heuristics on the bare path.
		add(strings.TrimPrefix(bare, r.attachmentFolder+"/"))
		add(bare)

		if !strings.HasPrefix(bare, r.attachmentFolder+"/") {
			add(r.attachmentFolder + "/" + bare)
		}

		// Relative to the note's folder.
		add(path.Join(noteDir, bare))

		// Capitalized attachment folder variant.
		add(capitalize(r.attachmentFolder) + "/" + strings.TrimPrefix(bare, r.attachmentFolder+"/"))

		// Same-named sibling folder convention:
		// <noteDir>/<noteBasename>/<finalSegment>.
		add(path.Join(noteDir, noteBase, path.Base(bare)))
	}

	return out
}

// Locate resolves a raw reference to an existing file in the vault. It
// tries every candidate in order, then falls back to a vault-wide search
// for the final path segment (raw and decoded). Returns ErrNotFound only
// after everything fails; resolution never panics on un-resolvable input.
func (r *Resolver) Locate(rawPath, notePath string) (string, error) {
	for _, candidate := range r.Candidates(rawPath, notePath) {
		if r.store.Exists(candidate) {
			return candidate, nil
		}
	}

	cleaned := cleanRef(rawPath)
	for _, name := range []string{path.Base(cleaned), path.Base(decodeRef(cleaned))} {
		if found, ok := r.store.FindByName(name); ok {
			return found, nil
		}
	}

	return "", apperrors.ErrNotFound
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])

	return string(runes)
}
