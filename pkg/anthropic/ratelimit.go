package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// rateLimitedClient wraps a Client and throttles CreateMessage calls so
// concurrent runners share one request budget against the API.
type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps client with a token-bucket limiter of rps requests
// per second and the given burst. Non-positive values fall back to 2 rps
// with a burst of 1.
func NewRateLimited(client Client, rps float64, burst int) Client {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *rateLimitedClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "anthropic: rate limit wait")
	}
	return c.inner.CreateMessage(ctx, req)
}
