package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Missiu/lsky-uploader/internal/lsky"
	"github.com/Missiu/lsky-uploader/internal/markdown"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

const (
	// deletePacing is the fixed delay between orphan deletions, bounding
	// the request rate against the server.
	deletePacing = 200 * time.Millisecond
)

// Reconciler compares the full remote inventory against the URLs still
// referenced by notes and deletes orphans after explicit confirmation.
type Reconciler struct {
	store     *vault.Store
	remote    ImageService
	reporter  Reporter
	confirmer Confirmer
	logger    *slog.Logger

	// pacing between deletions, overridable in tests.
	pacing time.Duration
}

// NewReconciler creates a reconciler. The confirmer is required; the
// reconciler never deletes without an approved confirmation.
func NewReconciler(store *vault.Store, remote ImageService, reporter Reporter, confirmer Confirmer, logger *slog.Logger) *Reconciler {
	if reporter == nil {
		reporter = NopReporter{}
	}

	return &Reconciler{
		store:     store,
		remote:    remote,
		reporter:  reporter,
		confirmer: confirmer,
		logger:    logger,
		pacing:    deletePacing,
	}
}

// CleanReport summarizes a reconciliation run. Deleted and Failed carry
// the URLs in each bucket.
type CleanReport struct {
	TotalRemote int
	UsedURLs    int
	Orphans     int
	Deleted     []string
	Failed      []Failure
	Cancelled   bool
}

// Run executes one reconciliation. The vault scan and the inventory
// listing are independent reads and run concurrently; deletion is
// strictly sequential with a pacing delay. The orphan set is computed
// fresh from this run's listing, never cached, so every deletion
// decision is based on current inventory. Declining the confirmation
// leaves the remote inventory untouched.
func (r *Reconciler) Run(ctx context.Context) (*CleanReport, error) {
	var (
		used      map[string]struct{}
		inventory []lsky.Image
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		used, err = r.collectUsedURLs(gctx)

		return err
	})

	g.Go(func() error {
		var err error

		inventory, err = r.remote.ListAllImages(gctx)
		if err != nil {
			return fmt.Errorf("listing remote inventory: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &CleanReport{
		TotalRemote: len(inventory),
		UsedURLs:    len(used),
	}

	var orphans []lsky.Image

	for _, img := range inventory {
		if _, ok := used[img.Links.URL]; !ok {
			orphans = append(orphans, img)
		}
	}

	report.Orphans = len(orphans)

	if len(orphans) == 0 {
		r.logger.Info("nothing to clean",
			slog.Int("remote", report.TotalRemote),
			slog.Int("used", report.UsedURLs),
		)

		return report, nil
	}

	ok, err := r.confirmer.Confirm(ctx, CleanSummary{
		TotalRemote: len(inventory),
		UsedURLs:    len(used),
		Orphans:     orphans,
	})
	if err != nil {
		return nil, fmt.Errorf("confirming deletion: %w", err)
	}

	if !ok {
		report.Cancelled = true
		r.logger.Info("reconciliation cancelled, remote inventory unchanged")

		return report, nil
	}

	r.reporter.SetTotal(len(orphans))

	for i, img := range orphans {
		if i > 0 && r.pacing > 0 {
			select {
			case <-time.After(r.pacing):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		if err := r.remote.DeleteImage(ctx, img.Key); err != nil {
			r.logger.Warn("orphan deletion failed",
				slog.String("key", img.Key),
				slog.String("url", img.Links.URL),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, Failure{Item: img.Links.URL, Err: err})
			r.reporter.Increment("failed " + img.Links.URL)

			continue
		}

		report.Deleted = append(report.Deleted, img.Links.URL)
		r.reporter.Increment("deleted " + img.Links.URL)
	}

	r.logger.Info("reconciliation complete",
		slog.Int("remote", report.TotalRemote),
		slog.Int("orphans", report.Orphans),
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("failed", len(report.Failed)),
	)

	return report, nil
}

// collectUsedURLs scans every note for references under the service's
// origin. Every note counts, including those opted out of bulk rewrites:
// an image referenced anywhere must never be treated as an orphan.
func (r *Reconciler) collectUsedURLs(ctx context.Context) (map[string]struct{}, error) {
	notes, err := r.store.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	origin := r.remote.Origin()
	used := make(map[string]struct{})

	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := r.store.ReadNote(note)
		if err != nil {
			return nil, fmt.Errorf("reading note %s: %w", note, err)
		}

		for _, ref := range markdown.Extract(text, markdown.RemoteOrigin(origin)) {
			used[ref.RawPath] = struct{}{}
		}
	}

	return used, nil
}
