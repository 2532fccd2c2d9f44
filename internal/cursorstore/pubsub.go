package cursorstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// eventChannel returns the channel name an individual proposal's analysis
// events are published to; subscribers pattern-match on "analysis:events:*"
// to observe every proposal without enumerating them up front.
func eventChannel(proposalID string) string {
	return fmt.Sprintf("analysis:events:%s", normalizeID(proposalID))
}

// PublishAnalysisEvent broadcasts an analysis event (progress, complete,
// failed) for the given proposal.
func (s *Store) PublishAnalysisEvent(ctx context.Context, proposalID string, payload []byte) error {
	if err := s.client.Publish(ctx, eventChannel(proposalID), payload).Err(); err != nil {
		return fmt.Errorf("publish analysis event: %w", err)
	}
	return nil
}

// SubscribeAnalysisEvents pattern-subscribes to every proposal's analysis
// event channel. Callers must Close the returned PubSub when done.
func (s *Store) SubscribeAnalysisEvents(ctx context.Context) *redis.PubSub {
	return s.client.PSubscribe(ctx, "analysis:events:*")
}
