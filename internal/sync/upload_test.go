package sync

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Missiu/lsky-uploader/internal/markdown"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

func newTestUploader(t *testing.T, remote *fakeRemote) (*Uploader, *vault.Store, string) {
	t.Helper()
	store, root := newTestVault(t)
	resolver := vault.NewResolver(store, "")
	u := NewUploader(store, resolver, remote, nil, testLogger())

	return u, store, root
}

func TestUploader_RewritesAndPersistsOnce(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	writeVaultFile(t, root, "attachments/a.png", []byte("payload-a"))
	writeVaultFile(t, root, "notes/today.md", []byte("# x\n![a](/attachments/a.png)\n"))

	report, err := u.Run(context.Background(), "notes/today.md")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Failures)

	text, err := store.ReadNote("notes/today.md")
	require.NoError(t, err)
	assert.NotContains(t, text, "a.png)")
	assert.Contains(t, text, "![](https://img.example.com/i/today-")

	// The uploaded payload is exactly what was on disk.
	require.Len(t, remote.uploaded, 1)
	for name, data := range remote.uploaded {
		assert.True(t, strings.HasPrefix(name, "today-"))
		assert.True(t, strings.HasSuffix(name, ".png"))
		assert.Equal(t, []byte("payload-a"), data)
	}
}

func TestUploader_FailureIsolation(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	writeVaultFile(t, root, "a.png", []byte("payload-a"))
	writeVaultFile(t, root, "c.png", []byte("payload-c"))
	// b.png does not exist anywhere, so its resolution fails.
	writeVaultFile(t, root, "note.md", []byte("![1](a.png)\n![2](b.png)\n![3](c.png)\n"))

	report, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)

	// The failed second reference does not stop the third.
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b.png", report.Failures[0].Item)

	// The note is persisted with exactly the successful rewrites.
	text, err := store.ReadNote("note.md")
	require.NoError(t, err)
	assert.Contains(t, text, "![2](b.png)")
	assert.NotContains(t, text, "![1](a.png)")
	assert.NotContains(t, text, "![3](c.png)")
	assert.Equal(t, 2, strings.Count(text, "https://img.example.com/i/"))
}

func TestUploader_NoReferencesNoWrite(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	original := "# nothing here\n"
	writeVaultFile(t, root, "note.md", []byte(original))

	report, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)

	text, err := store.ReadNote("note.md")
	require.NoError(t, err)
	assert.Equal(t, original, text)
	assert.Empty(t, remote.uploaded)
}

func TestUploader_AllFailuresNoWrite(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	original := "![1](missing.png)\n"
	writeVaultFile(t, root, "note.md", []byte(original))

	report, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 0, report.Succeeded)

	// Nothing succeeded, so the note must not be rewritten at all.
	text, err := store.ReadNote("note.md")
	require.NoError(t, err)
	assert.Equal(t, original, text)
}

func TestUploader_DistinctUploadNames(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, _, root := newTestUploader(t, remote)

	writeVaultFile(t, root, "a.png", []byte("one"))
	writeVaultFile(t, root, "b.png", []byte("two"))
	writeVaultFile(t, root, "note.md", []byte("![1](a.png)\n![2](b.png)\n"))

	_, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)

	// Even same-millisecond uploads get distinct names.
	assert.Len(t, remote.uploaded, 2)
}

func TestUploader_RemoteReferencesUntouched(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	original := "![r](https://elsewhere.example.org/x.png)\n"
	writeVaultFile(t, root, "note.md", []byte(original))

	report, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)

	text, err := store.ReadNote("note.md")
	require.NoError(t, err)
	assert.Equal(t, original, text)
}

func TestUploader_WikiEmbedUploads(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	u, store, root := newTestUploader(t, remote)

	writeVaultFile(t, root, "attachments/shot 1.png", []byte("wiki"))
	writeVaultFile(t, root, "note.md", []byte("![[shot 1.png]]\n"))

	report, err := u.Run(context.Background(), "note.md")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	text, err := store.ReadNote("note.md")
	require.NoError(t, err)
	assert.NotContains(t, text, "![[")

	// Re-extracting finds no local references left.
	assert.Empty(t, markdown.Extract(text, markdown.Local()))
}
