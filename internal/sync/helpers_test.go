package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Missiu/lsky-uploader/internal/lsky"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

// fakeRemote is an in-memory ImageService recording every call.
type fakeRemote struct {
	origin string

	uploaded  map[string][]byte // upload filename -> payload
	uploadErr map[string]error  // image payload key -> forced error
	images    []lsky.Image
	deleted   []string
	deleteErr map[string]error // key -> forced error
	fetchable map[string][]byte
	listCalls int
}

func newFakeRemote(origin string) *fakeRemote {
	return &fakeRemote{
		origin:    origin,
		uploaded:  make(map[string][]byte),
		uploadErr: make(map[string]error),
		deleteErr: make(map[string]error),
		fetchable: make(map[string][]byte),
	}
}

func (f *fakeRemote) Origin() string { return f.origin }

func (f *fakeRemote) UploadBinary(_ context.Context, data []byte, filename, _ string) (string, error) {
	if err := f.uploadErr[string(data)]; err != nil {
		return "", err
	}

	f.uploaded[filename] = data

	return f.origin + "/i/" + filename, nil
}

func (f *fakeRemote) ListAllImages(_ context.Context) ([]lsky.Image, error) {
	f.listCalls++

	return f.images, nil
}

func (f *fakeRemote) DeleteImage(_ context.Context, key string) error {
	if err := f.deleteErr[key]; err != nil {
		return err
	}

	f.deleted = append(f.deleted, key)

	return nil
}

func (f *fakeRemote) FetchBinary(_ context.Context, imageURL string) ([]byte, error) {
	data, ok := f.fetchable[imageURL]
	if !ok {
		return nil, fmt.Errorf("fetching %s: server returned status 404", imageURL)
	}

	return data, nil
}

// yesConfirmer approves every confirmation and records the summary.
type yesConfirmer struct {
	called  bool
	summary CleanSummary
}

func (c *yesConfirmer) Confirm(_ context.Context, s CleanSummary) (bool, error) {
	c.called = true
	c.summary = s

	return true, nil
}

// noConfirmer declines every confirmation.
type noConfirmer struct{ called bool }

func (c *noConfirmer) Confirm(_ context.Context, _ CleanSummary) (bool, error) {
	c.called = true

	return false, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestVault(t *testing.T) (*vault.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := vault.NewStore(root)
	require.NoError(t, err)

	return store, root
}

func writeVaultFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))
}
