package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"daovoter/internal/domain"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func samplePayload() domain.AnalysisJobPayload {
	return domain.AnalysisJobPayload{
		OnchainProposalID: "7",
		DAOGovernor:       "0xgovernor",
		ChainID:           1,
		Proposer:          "0xproposer",
		Title:             "Test proposal",
		Description:       "# Test proposal\nbody",
	}
}

func TestAddJobIsIdempotent(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.AddJob(ctx, "proposal-1", samplePayload()))
	require.NoError(t, bus.AddJob(ctx, "proposal-1", samplePayload()))

	lease, ok, err := bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "proposal-1", lease.Job.ID)

	_, ok, err = bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "a repeated AddJob must not have enqueued a second lane entry")
}

func TestLeaseCompleteRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, bus.AddJob(ctx, "proposal-2", samplePayload()))

	lease, ok, err := bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, bus.Complete(ctx, lease.Job.ID, lease.Token))

	job, found, err := bus.getJob(ctx, lease.Job.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, JobStatusDone, job.Status)
}

func TestFailRequeuesUntilAttemptsExhausted(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, bus.AddJob(ctx, "proposal-3", samplePayload()))

	lease, ok, err := bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "job should be leasable before any failed attempt")

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		require.NoError(t, bus.Fail(ctx, lease.Job.ID, lease.Token, "handler exploded"))

		job, found, err := bus.getJob(ctx, lease.Job.ID)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, attempt, job.AttemptCount)

		if attempt < maxAttempts {
			require.Equal(t, JobStatusPending, job.Status)
			// requeueAfter lands the job back in its lane asynchronously
			// after its backoff delay (capped at 16s); wait it out rather
			// than asserting on the exact jittered duration, then capture
			// the fresh lease to drive the next failed attempt.
			require.Eventually(t, func() bool {
				next, leased, err := bus.LeaseJob(ctx, 30*time.Second)
				if err == nil && leased {
					lease = next
					return true
				}
				return false
			}, backoffCap+2*time.Second, 50*time.Millisecond, "job must become leasable again once its backoff delay elapses")
		} else {
			require.Equal(t, JobStatusFailed, job.Status)
		}
	}
}

func TestCancelJobRemovesPendingEntry(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, bus.AddJob(ctx, "proposal-4", samplePayload()))

	require.NoError(t, bus.CancelJob(ctx, "proposal-4"))

	_, ok, err := bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "a cancelled job must not be leasable")

	_, found, err := bus.getJob(ctx, "proposal-4")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSweepStalledRecoversExpiredLease(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, bus.AddJob(ctx, "proposal-5", samplePayload()))

	lease, ok, err := bus.LeaseJob(ctx, 1*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	recovered, err := bus.SweepStalled(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	release, ok, err := bus.LeaseJob(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "the stalled job must be re-leasable after sweeping")
	require.Equal(t, lease.Job.ID, release.Job.ID)
	require.NotEqual(t, lease.Token, release.Token, "sweeping must issue a fresh lease token")
}
