package chain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// RateLimitedClient paces outbound RPC calls against a token bucket so a
// slow or metered provider cannot be overwhelmed during historical catch-up,
// when the scanner would otherwise fire windowed FilterLogs calls as fast
// as the loop allows.
type RateLimitedClient struct {
	LogFilterer
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client with a limiter allowing ratePerSecond
// calls per second, up to burst in a single instant.
func NewRateLimitedClient(client LogFilterer, ratePerSecond float64, burst int) *RateLimitedClient {
	return &RateLimitedClient{
		LogFilterer: client,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (c *RateLimitedClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.LogFilterer.FilterLogs(ctx, q)
}

func (c *RateLimitedClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.LogFilterer.BlockNumber(ctx)
}
