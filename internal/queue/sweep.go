package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepStalled scans the lease index for leases whose deadline has
// passed and returns them to their job's lane, treating the missed
// heartbeat as a worker crash. The orchestrator's bootstrap runs it on a
// periodic timer, once every job_stall_timeout_ms.
func (b *Bus) SweepStalled(ctx context.Context, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now().UnixMilli()
	stalled, err := b.client.ZRangeByScore(ctx, leaseIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan stalled leases: %w", err)
	}

	recovered := 0
	for _, id := range stalled {
		job, found, err := b.getJob(ctx, id)
		if err != nil {
			logger.Error("read stalled job failed", "job_id", id, "error", err)
			continue
		}
		if !found || job.Status != JobStatusLeased {
			// Already completed/failed/cancelled between the scan and now;
			// just drop the stale lease-index entry.
			_ = b.clearLease(ctx, id)
			continue
		}

		if err := b.clearLease(ctx, id); err != nil {
			logger.Error("clear stalled lease failed", "job_id", id, "error", err)
			continue
		}
		job.Status = JobStatusPending
		if err := b.putJob(ctx, job); err != nil {
			logger.Error("reset stalled job failed", "job_id", id, "error", err)
			continue
		}
		if err := b.client.LPush(ctx, laneKey(job.Priority), job.ID).Err(); err != nil {
			logger.Error("requeue stalled job failed", "job_id", id, "error", err)
			continue
		}
		logger.Warn("recovered stalled lease", "job_id", id, "attempt_count", job.AttemptCount)
		recovered++
	}
	return recovered, nil
}

// RunSweeper runs SweepStalled on interval until ctx is cancelled.
func (b *Bus) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.SweepStalled(ctx, logger); err != nil {
				if logger == nil {
					logger = slog.Default()
				}
				logger.Error("stall sweep failed", "error", err)
			}
		}
	}
}
