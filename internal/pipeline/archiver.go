// Package pipeline runs the background data housekeeping: scheduled export
// of aged records to cold storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// RunReport counts the records exported by one archive run.
type RunReport struct {
	Cutoff        time.Time
	Quotes        int64
	Opportunities int64
	Trades        int64
}

// Archiver exports records older than the retention window.
type Archiver struct {
	blob          domain.Archiver
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver. retentionDays below one is treated as one.
func NewArchiver(blob domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &Archiver{
		blob:          blob,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Run exports each kind once. A failing kind does not stop the others; the
// errors are joined.
func (a *Archiver) Run(ctx context.Context) (RunReport, error) {
	cutoff := a.now().UTC().AddDate(0, 0, -a.retentionDays)
	rep := RunReport{Cutoff: cutoff}
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var errs []error
	steps := []struct {
		kind string
		fn   func(context.Context, time.Time) (int64, error)
		dst  *int64
	}{
		{"quotes", a.blob.ArchiveQuotes, &rep.Quotes},
		{"opportunities", a.blob.ArchiveOpportunities, &rep.Opportunities},
		{"trades", a.blob.ArchiveTrades, &rep.Trades},
	}
	for _, s := range steps {
		n, err := s.fn(ctx, cutoff)
		*s.dst = n
		if err != nil {
			errs = append(errs, fmt.Errorf("archiving %s before %s: %w", s.kind, cutoff.Format(time.RFC3339), err))
			continue
		}
		a.logger.InfoContext(ctx, "archived", slog.String("kind", s.kind), slog.Int64("count", n))
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("quotes", rep.Quotes),
		slog.Int64("opportunities", rep.Opportunities),
		slog.Int64("trades", rep.Trades),
		slog.Int("errors", len(errs)),
	)
	return rep, errors.Join(errs...)
}

// RunCron runs the archiver on a five-field cron schedule (UTC) until ctx
// ends. Failed runs are logged and the schedule continues.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseCron(expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.Next(a.now().UTC())
		if err != nil {
			return err
		}
		wait := time.Until(next)
		a.logger.DebugContext(ctx, "archiver waiting", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
