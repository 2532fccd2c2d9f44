package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lanePriorityOrder is the order a worker drains lanes in: high before
// normal before low, per §4.4's three-lane model.
var lanePriorityOrder = []string{"high", "normal", "low"}

// Lease is returned to a worker that successfully leases a job. Token
// must be presented to Heartbeat, Complete, and Fail.
type Lease struct {
	Job   Job
	Token string
}

// LeaseJob pops the next job across lanes in priority order and records a
// lease with the given ttl. Returns false if every lane is empty.
func (b *Bus) LeaseJob(ctx context.Context, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	for _, lane := range lanePriorityOrder {
		id, err := b.client.RPop(ctx, fmt.Sprintf("jobs:lane:%s", lane)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Lease{}, false, fmt.Errorf("pop lane %s: %w", lane, err)
		}

		job, found, err := b.getJob(ctx, id)
		if err != nil {
			return Lease{}, false, err
		}
		if !found {
			// Descriptor was cancelled after the id was already popped;
			// nothing to lease, try the next lane.
			continue
		}

		token := uuid.NewString()
		deadline := time.Now().Add(ttl)
		if err := b.recordLease(ctx, id, token, deadline); err != nil {
			return Lease{}, false, err
		}

		job.Status = JobStatusLeased
		if err := b.putJob(ctx, job); err != nil {
			return Lease{}, false, err
		}
		return Lease{Job: job, Token: token}, true, nil
	}
	return Lease{}, false, nil
}

func (b *Bus) recordLease(ctx context.Context, id, token string, deadline time.Time) error {
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, leaseKey(id), token, 0)
	pipe.ZAdd(ctx, leaseIndexKey, redis.Z{Score: float64(deadline.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record lease %s: %w", id, err)
	}
	return nil
}

// Heartbeat extends a held lease's deadline, keeping it out of the stall
// sweeper's range.
func (b *Bus) Heartbeat(ctx context.Context, id, token string, ttl time.Duration) error {
	held, err := b.holdsLease(ctx, id, token)
	if err != nil {
		return err
	}
	if !held {
		return ErrNotLeaseHolder
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	if err := b.client.ZAdd(ctx, leaseIndexKey, redis.Z{Score: float64(time.Now().Add(ttl).UnixMilli()), Member: id}).Err(); err != nil {
		return fmt.Errorf("heartbeat %s: %w", id, err)
	}
	return nil
}

func (b *Bus) holdsLease(ctx context.Context, id, token string) (bool, error) {
	current, err := b.client.Get(ctx, leaseKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lease %s: %w", id, err)
	}
	return current == token, nil
}

func (b *Bus) clearLease(ctx context.Context, id string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, leaseKey(id))
	pipe.ZRem(ctx, leaseIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// Complete marks a leased job done and clears its lease. Returns
// ErrNotLeaseHolder if token no longer matches the held lease (the job
// was already reclaimed by the stall sweeper and leased elsewhere).
func (b *Bus) Complete(ctx context.Context, id, token string) error {
	held, err := b.holdsLease(ctx, id, token)
	if err != nil {
		return err
	}
	if !held {
		return ErrNotLeaseHolder
	}
	job, found, err := b.getJob(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownJob
	}
	job.Status = JobStatusDone
	if err := b.putJob(ctx, job); err != nil {
		return err
	}
	return b.clearLease(ctx, id)
}

// Fail records a failed attempt. If the job has attempts remaining it is
// re-queued into its original lane after the exponential-backoff delay
// for the next attempt; once maxAttempts is exhausted the job is marked
// FAILED permanently and the caller (the orchestrator) is responsible for
// appending an audit entry and transitioning the proposal to FAILED, per
// §4.4.
func (b *Bus) Fail(ctx context.Context, id, token, reason string) error {
	held, err := b.holdsLease(ctx, id, token)
	if err != nil {
		return err
	}
	if !held {
		return ErrNotLeaseHolder
	}
	job, found, err := b.getJob(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownJob
	}

	job.AttemptCount++
	job.LastError = reason
	if err := b.clearLease(ctx, id); err != nil {
		return err
	}

	if job.AttemptCount >= maxAttempts {
		job.Status = JobStatusFailed
		return b.putJob(ctx, job)
	}

	job.Status = JobStatusPending
	if err := b.putJob(ctx, job); err != nil {
		return err
	}
	return b.requeueAfter(ctx, job, backoffDelay(job.AttemptCount))
}

// requeueAfter pushes id back into its lane once delay elapses. The delay
// is short (seconds) so a blocking sleep on a dedicated goroutine is
// simpler and clearer than a second Redis-backed delay queue; the
// orchestrator runs one such goroutine per failed attempt.
func (b *Bus) requeueAfter(ctx context.Context, job Job, delay time.Duration) error {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		_ = b.client.LPush(context.Background(), laneKey(job.Priority), job.ID).Err()
	}()
	return nil
}
