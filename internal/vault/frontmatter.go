package vault

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds parsed YAML frontmatter fields.
type Frontmatter struct {
	// ImageSync opts a note out of bulk image operations when set to
	// false. Defaults to true when absent.
	ImageSync *bool `yaml:"image-sync"`
}

// parseFrontmatter extracts YAML frontmatter from markdown content.
// Returns nil if no frontmatter is found.
func parseFrontmatter(content []byte) *Frontmatter {
	if !bytes.HasPrefix(content, []byte("---")) {
		return nil
	}

	// Find the closing delimiter. It must be on its own line.
	rest := content[3:]
	// Skip the rest of the opening line (could be "---\n" or "---\r\n").
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		return nil
	}
	rest = rest[idx+1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil
	}

	block := rest[:end]

	var fm Frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil
	}
	return &fm
}

// SyncEnabled reports whether a note participates in bulk image
// operations. Notes opt out with "image-sync: false" in frontmatter.
func SyncEnabled(content string) bool {
	fm := parseFrontmatter([]byte(content))
	if fm == nil || fm.ImageSync == nil {
		return true
	}

	return *fm.ImageSync
}
