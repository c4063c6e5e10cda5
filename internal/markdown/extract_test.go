package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_AllForms(t *testing.T) {
	text := "intro\n" +
		"![alt](attachments/a.png)\n" +
		`<img class="wide" src="img/b.jpg" alt="b">` + "\n" +
		"![[c 1.png]]\n"

	refs := Extract(text, All())

	assert.Len(t, refs, 3)
	assert.Equal(t, FormMarkdown, refs[0].Form)
	assert.Equal(t, "attachments/a.png", refs[0].RawPath)
	assert.Equal(t, "![alt](attachments/a.png)", refs[0].MatchedText)
	assert.Equal(t, FormHTML, refs[1].Form)
	assert.Equal(t, "img/b.jpg", refs[1].RawPath)
	assert.Equal(t, FormWiki, refs[2].Form)
	assert.Equal(t, "c 1.png", refs[2].RawPath)
}

func TestExtract_RawPathIsLiteral(t *testing.T) {
	text := "![x](My%20Image.png)"
	refs := Extract(text, All())
	assert.Len(t, refs, 1)
	// Extraction never decodes; that is the resolver's job.
	assert.Equal(t, "My%20Image.png", refs[0].RawPath)
}

func TestExtract_DeduplicatesByRawPath(t *testing.T) {
	text := "![a](pic.png) and again ![b](pic.png) and ![[pic.png]]"
	refs := Extract(text, All())
	assert.Len(t, refs, 1)
	assert.Equal(t, "pic.png", refs[0].RawPath)
}

func TestExtract_LocalFilter(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		local bool
	}{
		{"relative path", "attachments/a.png", true},
		{"absolute vault path", "/notes/a.png", true},
		{"dot slash path", "./a.png", true},
		{"http url", "http://img.example.com/a.png", false},
		{"https url", "https://img.example.com/a.png", false},
		{"protocol relative", "//img.example.com/a.png", false},
		{"data uri", "data:image/png;base64,AAAA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := Extract("![x]("+tt.raw+")", Local())
			if tt.local {
				assert.Len(t, refs, 1)
				assert.Equal(t, tt.raw, refs[0].RawPath)
			} else {
				assert.Empty(t, refs)
			}
		})
	}
}

func TestExtract_RemoteOriginFilter(t *testing.T) {
	text := "![a](https://img.example.com/i/1.png)\n" +
		"![b](https://other.example.org/i/2.png)\n" +
		"![c](local/3.png)\n"

	refs := Extract(text, RemoteOrigin("https://img.example.com"))

	assert.Len(t, refs, 1)
	assert.Equal(t, "https://img.example.com/i/1.png", refs[0].RawPath)
}

func TestExtract_EmptyAndMalformed(t *testing.T) {
	assert.Empty(t, Extract("", All()))
	assert.Empty(t, Extract("![unclosed](a.png", All()))
	assert.Empty(t, Extract("[not an image](a.png)", All()))
	assert.Empty(t, Extract("![]()", All()))
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	text := "![a](pic.png)"
	first := Extract(text, All())
	second := Extract(text, All())
	assert.Equal(t, first, second)
}

func TestExtract_WikiEmbedNotCountedAsMarkdown(t *testing.T) {
	refs := Extract("![[folder/pic.png]]", All())
	assert.Len(t, refs, 1)
	assert.Equal(t, FormWiki, refs[0].Form)
}
