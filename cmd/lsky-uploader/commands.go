package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Missiu/lsky-uploader/internal/sync"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

func runUpload(_ *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		notePath := vault.NormalizePath(args[0])

		uploader := sync.NewUploader(a.store, a.resolver, a.client, newStderrReporter(), a.logger)

		report, err := uploader.Run(ctx, notePath)
		if err != nil {
			return err
		}

		printRunSummary(report.Note, report.Attempted, report.Succeeded, report.Failures)

		if len(report.Failures) > 0 {
			return fmt.Errorf("%d of %d uploads failed", len(report.Failures), report.Attempted)
		}

		return nil
	})
}

func runDownload(_ *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		notePath := vault.NormalizePath(args[0])

		downloader := sync.NewDownloader(a.store, a.client, newStderrReporter(), a.logger)

		report, err := downloader.Run(ctx, notePath)
		if err != nil {
			return err
		}

		printRunSummary(report.Note, report.Attempted, report.Succeeded, report.Failures)

		if len(report.Failures) > 0 {
			return fmt.Errorf("%d of %d downloads failed", len(report.Failures), report.Attempted)
		}

		return nil
	})
}

func runDownloadAll(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		downloader := sync.NewDownloader(a.store, a.client, newStderrReporter(), a.logger)

		reports, err := downloader.RunAll(ctx)
		if err != nil {
			return err
		}

		var attempted, succeeded, failed int

		for _, report := range reports {
			attempted += report.Attempted
			succeeded += report.Succeeded
			failed += len(report.Failures)
		}

		fmt.Fprintf(os.Stderr, "%d notes processed: %d downloaded, %d failed\n",
			len(reports), succeeded, failed)

		if failed > 0 {
			return fmt.Errorf("%d of %d downloads failed", failed, attempted)
		}

		return nil
	})
}

func runClean(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var confirmer sync.Confirmer = &promptConfirmer{}
		if assumeYes {
			confirmer = autoConfirmer{}
		}

		reconciler := sync.NewReconciler(a.store, a.client, newStderrReporter(), confirmer, a.logger)

		report, err := reconciler.Run(ctx)
		if err != nil {
			return err
		}

		if report.Cancelled {
			fmt.Fprintln(os.Stderr, "cancelled, nothing deleted")

			return nil
		}

		fmt.Fprintf(os.Stderr, "%d remote images, %d in use, %d orphans: %d deleted, %d failed\n",
			report.TotalRemote, report.UsedURLs, report.Orphans,
			len(report.Deleted), len(report.Failed))

		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d deletions failed", len(report.Failed), report.Orphans)
		}

		return nil
	})
}

func runWatch(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		uploader := sync.NewUploader(a.store, a.resolver, a.client, nil, a.logger)
		watcher := sync.NewWatcher(a.store, uploader, a.logger)

		err := watcher.Watch(ctx)
		if ctx.Err() != nil {
			// Normal shutdown via signal.
			a.logger.Info("watcher stopped")

			return nil
		}

		return err
	})
}

func printRunSummary(note string, attempted, succeeded int, failures []sync.Failure) {
	fmt.Fprintf(os.Stderr, "%s: %d references, %d succeeded, %d failed\n",
		note, attempted, succeeded, len(failures))

	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  failed %s: %v\n", f.Item, f.Err)
	}
}
