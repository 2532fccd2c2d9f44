// Package queue implements the analysis job bus (C4): three priority
// lanes, idempotent enqueue keyed by proposal internal id, leased
// delivery with heartbeats, and retry with exponential backoff and
// jitter.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"daovoter/internal/domain"
)

// JobStatus is a job's lifecycle state within the bus.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusLeased  JobStatus = "LEASED"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

const (
	maxAttempts     = 3
	backoffBase     = 1 * time.Second
	backoffCap      = 16 * time.Second
	defaultLeaseTTL = 30 * time.Second
)

// ErrUnknownJob is returned when an operation names a job id the bus has
// no record of.
var ErrUnknownJob = errors.New("queue: unknown job")

// ErrNotLeaseHolder is returned when completing, failing, or
// heartbeating a job with a token that doesn't match its current lease.
var ErrNotLeaseHolder = errors.New("queue: token does not hold the current lease")

// Job is the bus's job descriptor, returned from AddJob and visible to
// leasing workers.
type Job struct {
	ID           string                     `json:"id"`
	Priority     domain.JobPriority         `json:"priority"`
	Payload      domain.AnalysisJobPayload  `json:"payload"`
	Status       JobStatus                  `json:"status"`
	AttemptCount int                        `json:"attempt_count"`
	LastError    string                     `json:"last_error,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// Bus wraps a redis client with the job-bus key namespace.
type Bus struct {
	client *redis.Client
}

// New wraps an already-configured redis client.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func jobKey(id string) string    { return fmt.Sprintf("jobs:job:%s", id) }
func laneKey(p domain.JobPriority) string { return fmt.Sprintf("jobs:lane:%s", p) }
func leaseKey(id string) string  { return fmt.Sprintf("jobs:lease:%s", id) }

// leaseIndexKey is a sorted set scored by lease-expiry epoch millis,
// letting the stall sweeper find expired leases without scanning every
// job.
const leaseIndexKey = "jobs:lease_index"

// AddJob satisfies chain.JobEnqueuer: newly detected proposals always
// enter the normal lane. Idempotent — if a job already exists for id,
// its existing descriptor is left untouched and nothing is re-enqueued,
// per §4.4.
func (b *Bus) AddJob(ctx context.Context, proposalInternalID string, payload domain.AnalysisJobPayload) error {
	_, err := b.addJob(ctx, proposalInternalID, payload, domain.JobPriorityNormal)
	return err
}

// AddJobWithPriority is AddJob with explicit lane control, for callers
// (operator tooling, re-analysis requests) that need to jump the normal
// lane.
func (b *Bus) AddJobWithPriority(ctx context.Context, proposalInternalID string, payload domain.AnalysisJobPayload, priority domain.JobPriority) (Job, error) {
	return b.addJob(ctx, proposalInternalID, payload, priority)
}

func (b *Bus) addJob(ctx context.Context, id string, payload domain.AnalysisJobPayload, priority domain.JobPriority) (Job, error) {
	if existing, found, err := b.getJob(ctx, id); err != nil {
		return Job{}, err
	} else if found {
		return existing, nil
	}

	job := Job{
		ID:        id,
		Priority:  priority,
		Payload:   payload,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job: %w", err)
	}

	// SetNX on the descriptor guards the idempotency window: a second
	// concurrent AddJob for the same id loses the race and falls through
	// to reading what the winner wrote.
	ok, err := b.client.SetNX(ctx, jobKey(id), raw, 0).Result()
	if err != nil {
		return Job{}, fmt.Errorf("create job descriptor: %w", err)
	}
	if !ok {
		existing, found, err := b.getJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if found {
			return existing, nil
		}
		return Job{}, fmt.Errorf("create job descriptor: lost race and descriptor vanished")
	}

	if err := b.client.LPush(ctx, laneKey(priority), id).Err(); err != nil {
		return Job{}, fmt.Errorf("push to lane %s: %w", priority, err)
	}
	return job, nil
}

func (b *Bus) getJob(ctx context.Context, id string) (Job, bool, error) {
	raw, err := b.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, false, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return job, true, nil
}

func (b *Bus) putJob(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return b.client.Set(ctx, jobKey(job.ID), raw, 0).Err()
}

// CancelJob removes a pending job's lane entries so it is never leased.
// An in-flight lease is left untouched; its eventual Complete/Fail result
// is simply discarded by the caller, per §4.4's cancellation rule.
func (b *Bus) CancelJob(ctx context.Context, id string) error {
	for _, lane := range []domain.JobPriority{domain.JobPriorityHigh, domain.JobPriorityNormal, domain.JobPriorityLow} {
		if err := b.client.LRem(ctx, laneKey(lane), 0, id).Err(); err != nil {
			return fmt.Errorf("remove job %s from lane %s: %w", id, lane, err)
		}
	}
	return b.client.Del(ctx, jobKey(id)).Err()
}

// backoffDelay returns the exponential-backoff-with-jitter delay before
// attempt (1-indexed) is re-leased: base 1s, doubling, capped at 16s, with
// up to 50% jitter so a batch of simultaneously-failed jobs doesn't retry
// in lockstep and thunder the downstream worker pool.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d - jitter
}
