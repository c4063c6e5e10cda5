package sync

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/Missiu/lsky-uploader/internal/markdown"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

// Uploader pushes a note's local image references to the remote service
// and rewrites the note to point at the uploaded URLs.
type Uploader struct {
	store    *vault.Store
	resolver *vault.Resolver
	remote   ImageService
	reporter Reporter
	logger   *slog.Logger

	// lastStamp guarantees strictly increasing upload filename tokens
	// even when two uploads land in the same millisecond.
	lastStamp int64
}

// NewUploader creates an upload orchestrator.
func NewUploader(store *vault.Store, resolver *vault.Resolver, remote ImageService, reporter Reporter, logger *slog.Logger) *Uploader {
	if reporter == nil {
		reporter = NopReporter{}
	}

	return &Uploader{
		store:    store,
		resolver: resolver,
		remote:   remote,
		reporter: reporter,
		logger:   logger,
	}
}

// UploadReport summarizes one note's upload run.
type UploadReport struct {
	Note      string
	Attempted int
	Succeeded int
	Failures  []Failure
}

// Run uploads every local image reference in one note. Each reference is
// processed independently: a failed resolution, read, or upload is
// recorded and the remaining references still run. The note is persisted
// once at the end, and only if at least one upload succeeded, so a
// partial run never leaves interleaved half-rewritten state on disk.
func (u *Uploader) Run(ctx context.Context, notePath string) (*UploadReport, error) {
	text, err := u.store.ReadNote(notePath)
	if err != nil {
		return nil, fmt.Errorf("reading note %s: %w", notePath, err)
	}

	refs := markdown.Extract(text, markdown.Local())

	report := &UploadReport{Note: notePath}
	if len(refs) == 0 {
		return report, nil
	}

	u.reporter.SetTotal(len(refs))

	working := text

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report.Attempted++

		remoteURL, err := u.uploadOne(ctx, notePath, ref.RawPath)
		if err != nil {
			u.logger.Warn("upload failed",
				slog.String("note", notePath),
				slog.String("ref", ref.RawPath),
				slog.String("error", err.Error()),
			)
			report.Failures = append(report.Failures, Failure{Item: ref.RawPath, Err: err})
			u.reporter.Increment("failed " + ref.RawPath)

			continue
		}

		working = markdown.Rewrite(working, ref.RawPath, remoteURL, markdown.ToRemote)
		report.Succeeded++
		u.reporter.Increment("uploaded " + ref.RawPath)
	}

	if report.Succeeded > 0 {
		if err := u.store.WriteNote(notePath, working); err != nil {
			return nil, fmt.Errorf("persisting note %s: %w", notePath, err)
		}
	}

	u.logger.Info("upload run complete",
		slog.String("note", notePath),
		slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", len(report.Failures)),
	)

	return report, nil
}

func (u *Uploader) uploadOne(ctx context.Context, notePath, rawPath string) (string, error) {
	located, err := u.resolver.Locate(rawPath, notePath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rawPath, err)
	}

	data, err := u.store.ReadBinary(located)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", located, err)
	}

	filename := u.uploadName(notePath, located)

	remoteURL, err := u.remote.UploadBinary(ctx, data, filename, mimeTypeFor(located))
	if err != nil {
		return "", err
	}

	return remoteURL, nil
}

// uploadName derives a collision-resistant remote filename from the note
// basename, a monotonic time token, and the original extension.
func (u *Uploader) uploadName(notePath, imagePath string) string {
	stamp := time.Now().UnixMilli()
	if stamp <= u.lastStamp {
		stamp = u.lastStamp + 1
	}

	u.lastStamp = stamp

	base := strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
	base = strings.ReplaceAll(base, " ", "-")

	return fmt.Sprintf("%s-%d%s", base, stamp, path.Ext(imagePath))
}

func mimeTypeFor(imagePath string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(imagePath))); t != "" {
		return t
	}

	return "application/octet-stream"
}
