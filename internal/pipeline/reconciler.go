package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type ReconcilerOptions struct {
	Ledger  *Ledger
	Matcher *Matcher
	Now     func() time.Time
	Logger  *slog.Logger
}

// Reconciler resolves a freshly uploaded link against the ledger: either
// exactly one existing unlinked row claims it, or exactly one new row is
// appended carrying it. Calls must not run concurrently; the single
// worker goroutine (see Worker) is what serializes them.
type Reconciler struct {
	ledger  *Ledger
	matcher *Matcher
	now     func() time.Time
	logger  *slog.Logger
}

func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Ledger == nil || opts.Matcher == nil {
		return nil, ErrInvalidInput
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:  opts.Ledger,
		matcher: opts.Matcher,
		now:     now,
		logger:  logger,
	}, nil
}

// Reconcile scans rows in stored order (newest-first under the top-append
// convention), asking the matcher about each unlinked row with note text.
// The first positive match claims the link and ends the scan.
func (r *Reconciler) Reconcile(ctx context.Context, link, fileLabel string) (bool, error) {
	if strings.TrimSpace(link) == "" || strings.TrimSpace(fileLabel) == "" {
		return false, ErrInvalidInput
	}
	rows, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	for i, row := range rows {
		if strings.TrimSpace(row.Link) != "" {
			continue
		}
		if strings.TrimSpace(row.NoteText) == "" {
			continue
		}
		if !r.matcher.IsMatch(ctx, row.NoteText, fileLabel) {
			continue
		}
		if err := r.ledger.SetLink(ctx, i, link); err != nil {
			return false, err
		}
		r.logger.Info("link claimed by existing row",
			slog.Int("row", i),
			slog.String("file", fileLabel),
			slog.String("link", link))
		return true, nil
	}

	row := Row{
		Timestamp: r.now().Format(ledgerTimeFormat),
		Link:      link,
	}
	if err := r.ledger.Append(ctx, row); err != nil {
		return false, err
	}
	r.logger.Info("no matching row, appended new entry",
		slog.String("file", fileLabel),
		slog.String("link", link))
	return false, nil
}
