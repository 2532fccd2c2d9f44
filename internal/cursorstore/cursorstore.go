// Package cursorstore wraps Redis with the primitives C1 needs: a durable
// scan cursor, a distributed lock (taken by the scanner per proposal while
// it records the proposal), and a short-lived cache for completed analysis
// results.
package cursorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock this holder's token does
// not currently own (already expired, or never acquired).
var ErrLockNotHeld = errors.New("cursorstore: lock not held by this token")

// Store wraps a redis client with daovoter's key namespace.
type Store struct {
	client *redis.Client
}

// New wraps an already-configured redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func cursorKey(scannerID string) string {
	return fmt.Sprintf("scanner:last_block:%s", normalizeID(scannerID))
}

func lockKey(lockID string) string {
	return fmt.Sprintf("scanner:lock:%s", normalizeID(lockID))
}

func cacheKey(proposalID string) string {
	return fmt.Sprintf("analysis:result:%s", normalizeID(proposalID))
}

// GetCursor returns the last durably committed block for the named
// scanner, and false if no cursor has ever been written.
func (s *Store) GetCursor(ctx context.Context, scannerID string) (uint64, bool, error) {
	val, err := s.client.Get(ctx, cursorKey(scannerID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", val, err)
	}
	return block, true, nil
}

// SetCursor durably commits the scanner's progress. Callers must only call
// this after a full historical window (or a single live event) has been
// fully processed, per §4.3's commit-after-window-success invariant.
func (s *Store) SetCursor(ctx context.Context, scannerID string, block uint64) error {
	if err := s.client.Set(ctx, cursorKey(scannerID), strconv.FormatUint(block, 10), 0).Err(); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// AcquireLock attempts to take the named lock for ttl, returning a token
// that must be presented to ReleaseLock. The second return is false when
// another holder already owns the lock.
func (s *Store) AcquireLock(ctx context.Context, lockID, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(lockID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// releaseScript only deletes the lock key if its value still matches the
// caller's token, so a holder whose lock already expired and was
// re-acquired by someone else cannot release out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// ReleaseLock releases a lock previously acquired with AcquireLock, only
// when token still matches the current holder.
func (s *Store) ReleaseLock(ctx context.Context, lockID, token string) error {
	result, err := releaseScript.Run(ctx, s.client, []string{lockKey(lockID)}, token).Int64()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// CacheAnalysisResult stores a serialized analysis result for ttl, keyed by
// proposal internal id, as §4.1's bounded-TTL result cache.
func (s *Store) CacheAnalysisResult(ctx context.Context, proposalID string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, cacheKey(proposalID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache analysis result: %w", err)
	}
	return nil
}

// GetCachedAnalysisResult returns a previously cached analysis payload, and
// false if none is cached (expired or never written).
func (s *Store) GetCachedAnalysisResult(ctx context.Context, proposalID string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, cacheKey(proposalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached analysis result: %w", err)
	}
	return val, true, nil
}

// Ping verifies connectivity, surfacing a clear error at startup rather
// than an opaque failure on first use.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// normalizeID lower-cases and trims an identifier used as a Redis key
// component, keeping keys stable regardless of address checksum casing.
func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
