package cron

import (
	"context"
	"time"

	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// HistoryPruner deletes history rows older than a cutoff.
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob prunes history older than retention.
func RetentionJob(pruner HistoryPruner, retention time.Duration, logger pipeline.Logger) JobFunc {
	return func(ctx context.Context) error {
		deleted, err := pruner.DeleteOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info("Pruned playback history", pipeline.Int64("deleted", deleted), pipeline.Duration("retention", retention))
		}
		return nil
	}
}
