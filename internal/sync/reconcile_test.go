package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Missiu/lsky-uploader/internal/lsky"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

func remoteImage(origin, key, name string) lsky.Image {
	return lsky.Image{
		Key:  key,
		Name: name,
		Links: lsky.Links{
			URL: origin + "/i/" + name,
		},
	}
}

func newTestReconciler(t *testing.T, remote *fakeRemote, confirmer Confirmer) (*Reconciler, *vault.Store, string) {
	t.Helper()
	store, root := newTestVault(t)
	r := NewReconciler(store, remote, nil, confirmer, testLogger())
	r.pacing = 0

	return r, store, root
}

func TestReconciler_DeletesOrphansOnly(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
		remoteImage(remote.origin, "k2", "b.png"),
		remoteImage(remote.origin, "k3", "c.png"),
	}

	confirmer := &yesConfirmer{}
	r, _, root := newTestReconciler(t, remote, confirmer)

	writeVaultFile(t, root, "note.md", []byte("![x](https://img.example.com/i/b.png)\n"))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalRemote)
	assert.Equal(t, 1, report.UsedURLs)
	assert.Equal(t, 2, report.Orphans)
	assert.ElementsMatch(t, []string{
		"https://img.example.com/i/a.png",
		"https://img.example.com/i/c.png",
	}, report.Deleted)
	assert.ElementsMatch(t, []string{"k1", "k3"}, remote.deleted)

	require.True(t, confirmer.called)
	assert.Len(t, confirmer.summary.Orphans, 2)
}

func TestReconciler_DeclinedLeavesInventoryUnchanged(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
	}

	confirmer := &noConfirmer{}
	r, _, _ := newTestReconciler(t, remote, confirmer)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.Orphans)
	assert.Empty(t, report.Deleted)
	assert.Empty(t, remote.deleted)
	assert.True(t, confirmer.called)
}

func TestReconciler_NoOrphansSkipsConfirmation(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
	}

	confirmer := &yesConfirmer{}
	r, _, root := newTestReconciler(t, remote, confirmer)

	writeVaultFile(t, root, "note.md", []byte("![x](https://img.example.com/i/a.png)\n"))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Orphans)
	assert.False(t, confirmer.called)
	assert.Empty(t, remote.deleted)
}

func TestReconciler_DeleteFailureIsolation(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
		remoteImage(remote.origin, "k2", "b.png"),
		remoteImage(remote.origin, "k3", "c.png"),
	}
	remote.deleteErr["k2"] = errors.New("server returned status 500")

	r, _, _ := newTestReconciler(t, remote, &yesConfirmer{})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	// The failed middle deletion does not stop the rest.
	assert.ElementsMatch(t, []string{
		"https://img.example.com/i/a.png",
		"https://img.example.com/i/c.png",
	}, report.Deleted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "https://img.example.com/i/b.png", report.Failed[0].Item)
}

func TestReconciler_OptedOutNotesStillProtectImages(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
	}

	r, _, root := newTestReconciler(t, remote, &yesConfirmer{})

	// The note opted out of rewrites, but its references still count as
	// used.
	writeVaultFile(t, root, "frozen.md", []byte(
		"---\nimage-sync: false\n---\n![x](https://img.example.com/i/a.png)\n"))

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Orphans)
	assert.Empty(t, remote.deleted)
}

func TestReconciler_ForeignOriginNotCounted(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	remote.images = []lsky.Image{
		remoteImage(remote.origin, "k1", "a.png"),
	}

	r, _, root := newTestReconciler(t, remote, &noConfirmer{})

	// A reference to some other host does not protect anything here.
	writeVaultFile(t, root, "note.md", []byte("![x](https://elsewhere.example.org/i/a.png)\n"))

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.UsedURLs)
	assert.Equal(t, 1, report.Orphans)
}

func TestReconciler_FreshInventoryEachRun(t *testing.T) {
	remote := newFakeRemote("https://img.example.com")
	r, _, _ := newTestReconciler(t, remote, &yesConfirmer{})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, remote.listCalls)
}
