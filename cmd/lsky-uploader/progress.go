package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Missiu/lsky-uploader/internal/sync"
)

// stderrReporter prints one progress line per item to stderr.
type stderrReporter struct {
	total   int
	current int
}

func newStderrReporter() *stderrReporter {
	return &stderrReporter{}
}

func (r *stderrReporter) SetTotal(n int) {
	r.total = n
	r.current = 0
}

func (r *stderrReporter) SetProgress(current int, message string) {
	r.current = current
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", r.current, r.total, message)
}

func (r *stderrReporter) Increment(message string) {
	r.current++
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", r.current, r.total, message)
}

// promptConfirmer shows the orphan list and asks for a y/N answer on
// stdin before any deletion proceeds.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(ctx context.Context, summary sync.CleanSummary) (bool, error) {
	fmt.Fprintf(os.Stderr, "%d remote images, %d referenced by notes\n",
		summary.TotalRemote, summary.UsedURLs)
	fmt.Fprintf(os.Stderr, "%d orphans would be deleted:\n", len(summary.Orphans))

	for _, img := range summary.Orphans {
		fmt.Fprintf(os.Stderr, "  %s\n", img.Links.URL)
	}

	fmt.Fprint(os.Stderr, "delete these images? [y/N] ")

	answerCh := make(chan string, 1)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			answerCh <- scanner.Text()
		} else {
			answerCh <- ""
		}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case answer := <-answerCh:
		answer = strings.ToLower(strings.TrimSpace(answer))

		return answer == "y" || answer == "yes", nil
	}
}

// autoConfirmer approves deletions without prompting, for --yes runs.
type autoConfirmer struct{}

func (autoConfirmer) Confirm(_ context.Context, summary sync.CleanSummary) (bool, error) {
	fmt.Fprintf(os.Stderr, "deleting %d orphans (confirmation skipped)\n", len(summary.Orphans))

	return true, nil
}
