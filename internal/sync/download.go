package sync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/Missiu/lsky-uploader/internal/markdown"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

// Downloader localizes a note's remote image references: images hosted
// on the configured service are fetched into a per-note folder and the
// references rewritten to local wiki embeds.
type Downloader struct {
	store    *vault.Store
	remote   ImageService
	reporter Reporter
	logger   *slog.Logger
}

// NewDownloader creates a download orchestrator.
func NewDownloader(store *vault.Store, remote ImageService, reporter Reporter, logger *slog.Logger) *Downloader {
	if reporter == nil {
		reporter = NopReporter{}
	}

	return &Downloader{
		store:    store,
		remote:   remote,
		reporter: reporter,
		logger:   logger,
	}
}

// DownloadReport summarizes one note's download run.
type DownloadReport struct {
	Note      string
	Attempted int
	Succeeded int
	Failures  []Failure
}

// Run localizes every origin-matching remote reference in one note.
// Fetched images land in a folder keyed by the note's location and
// basename; references are rewritten to the canonical local embed form
// carrying only the final filename. The original reference form is not
// restored, by design. The note is persisted once after all references
// are processed; a failed fetch is recorded and skipped.
func (d *Downloader) Run(ctx context.Context, notePath string) (*DownloadReport, error) {
	text, err := d.store.ReadNote(notePath)
	if err != nil {
		return nil, fmt.Errorf("reading note %s: %w", notePath, err)
	}

	refs := markdown.Extract(text, markdown.RemoteOrigin(d.remote.Origin()))

	report := &DownloadReport{Note: notePath}
	if len(refs) == 0 {
		return report, nil
	}

	d.reporter.SetTotal(len(refs))

	destDir := noteImageDir(notePath)
	if err := d.store.MkdirAll(destDir); err != nil {
		return nil, fmt.Errorf("creating image folder %s: %w", destDir, err)
	}

	working := text

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report.Attempted++

		filename, err := d.downloadOne(ctx, destDir, ref.RawPath)
		if err != nil {
			d.logger.Warn("download failed",
				slog.String("note", notePath),
				slog.String("url", ref.RawPath),
				slog.String("error", err.Error()),
			)
			report.Failures = append(report.Failures, Failure{Item: ref.RawPath, Err: err})
			d.reporter.Increment("failed " + ref.RawPath)

			continue
		}

		working = markdown.Rewrite(working, ref.RawPath, filename, markdown.ToLocal)
		report.Succeeded++
		d.reporter.Increment("downloaded " + filename)
	}

	if report.Succeeded > 0 {
		if err := d.store.WriteNote(notePath, working); err != nil {
			return nil, fmt.Errorf("persisting note %s: %w", notePath, err)
		}
	}

	d.logger.Info("download run complete",
		slog.String("note", notePath),
		slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", len(report.Failures)),
	)

	return report, nil
}

// RunAll localizes remote references across every note in the vault,
// sequentially to bound request concurrency against the service. Notes
// that opted out via frontmatter are skipped; a note that fails outright
// does not block the remaining notes.
func (d *Downloader) RunAll(ctx context.Context) ([]*DownloadReport, error) {
	notes, err := d.store.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	var reports []*DownloadReport

	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		text, err := d.store.ReadNote(note)
		if err != nil {
			d.logger.Warn("skipping unreadable note", slog.String("note", note), slog.String("error", err.Error()))
			continue
		}

		if !vault.SyncEnabled(text) {
			d.logger.Debug("note opted out of image sync", slog.String("note", note))
			continue
		}

		report, err := d.Run(ctx, note)
		if err != nil {
			d.logger.Warn("note download failed", slog.String("note", note), slog.String("error", err.Error()))
			continue
		}

		if report.Attempted > 0 {
			reports = append(reports, report)
		}
	}

	return reports, nil
}

func (d *Downloader) downloadOne(ctx context.Context, destDir, imageURL string) (string, error) {
	data, err := d.remote.FetchBinary(ctx, imageURL)
	if err != nil {
		return "", err
	}

	filename := remoteFilename(imageURL)
	if filename == "" {
		return "", fmt.Errorf("cannot derive filename from %s", imageURL)
	}

	if err := d.store.WriteBinary(path.Join(destDir, filename), data); err != nil {
		return "", fmt.Errorf("writing %s: %w", filename, err)
	}

	return filename, nil
}

// noteImageDir is the per-note destination folder, keyed by the note's
// location and basename.
func noteImageDir(notePath string) string {
	base := strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))

	return path.Join(path.Dir(notePath), base)
}

// remoteFilename extracts the final path segment of an image URL,
// ignoring any query string.
func remoteFilename(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return path.Base(imageURL)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}

	return name
}
