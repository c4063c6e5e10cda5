// Package sync drives the image synchronization flows: uploading local
// references, localizing remote references, and reconciling the remote
// inventory against what notes still use.
package sync

import (
	"context"

	"github.com/Missiu/lsky-uploader/internal/lsky"
)

// ImageService is the remote side consumed by the orchestrators. It is
// satisfied by *lsky.Client; tests substitute a fake.
type ImageService interface {
	Origin() string
	UploadBinary(ctx context.Context, data []byte, filename, mimeType string) (string, error)
	ListAllImages(ctx context.Context) ([]lsky.Image, error)
	DeleteImage(ctx context.Context, key string) error
	FetchBinary(ctx context.Context, imageURL string) ([]byte, error)
}

// Reporter receives fire-and-forget progress updates during batch
// operations. No return value is consumed; implementations must not
// block the operation.
type Reporter interface {
	SetTotal(n int)
	SetProgress(current int, message string)
	Increment(message string)
}

// NopReporter discards all progress updates.
type NopReporter struct{}

func (NopReporter) SetTotal(int)            {}
func (NopReporter) SetProgress(int, string) {}
func (NopReporter) Increment(string)        {}

// CleanSummary describes a pending reconciliation for confirmation.
type CleanSummary struct {
	TotalRemote int
	UsedURLs    int
	Orphans     []lsky.Image
}

// Confirmer asks the user to approve a destructive reconciliation. The
// reconciler blocks on its result before deleting anything.
type Confirmer interface {
	Confirm(ctx context.Context, summary CleanSummary) (bool, error)
}

// Failure records one isolated per-item failure inside a batch.
type Failure struct {
	Item string
	Err  error
}
