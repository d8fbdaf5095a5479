package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// Archiver moves aged history from the database to S3 cold storage:
// terminal exposure rows, old decision log entries, and old audit entries.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run. It calculates the cutoff time from
// retentionDays and archives everything older than the cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	exposure, err := a.blobArchiver.ArchiveExposure(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving exposure before %v: %w", cutoff, err)
	}

	decisions, err := a.blobArchiver.ArchiveDecisions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving decisions before %v: %w", cutoff, err)
	}

	audit, err := a.blobArchiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving audit log before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("exposure_archived", exposure),
		slog.Int64("decisions_archived", decisions),
		slog.Int64("audit_archived", audit),
	)
	return nil
}

// RunLoop runs the archiver on a fixed interval until the context is
// cancelled. A failed run is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))
	defer a.logger.Info("archiver stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
