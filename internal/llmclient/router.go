// File: internal/llmclient/router.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// LLMRouter implements schemas.LLMClient and routes requests to different
// underlying clients based on the requested model tier. A shared rate
// limiter throttles all outbound generation calls, since loop turns and
// one-shot planning draw from the same provider quota.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
	limiter *rate.Limiter
}

// NewLLMRouter creates a new router with the specified clients for each tier.
// requestsPerMinute <= 0 disables throttling.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient, requestsPerMinute int) (*LLMRouter, error) {
	if fastClient == nil {
		return nil, fmt.Errorf("fast tier client cannot be nil")
	}
	if powerfulClient == nil {
		return nil, fmt.Errorf("powerful tier client cannot be nil")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
		limiter: limiter,
	}, nil
}

// GenerateResponse selects the appropriate client based on the request's
// tier and forwards the request.
func (r *LLMRouter) GenerateResponse(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.GenerateResponse(ctx, req)
}

// GenerateStreaming satisfies schemas.StreamingLLMClient. When the
// underlying client cannot stream, the full response is delivered as a
// single chunk so callers can treat both cases uniformly.
func (r *LLMRouter) GenerateStreaming(ctx context.Context, req schemas.GenerationRequest) (<-chan string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}
	client, ok := r.clients[tier]
	if !ok {
		return nil, fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	if streamer, ok := client.(schemas.StreamingLLMClient); ok {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}
		return streamer.GenerateStreaming(ctx, req)
	}

	out := make(chan string, 1)
	text, err := r.GenerateResponse(ctx, req)
	if err != nil {
		close(out)
		return nil, err
	}
	out <- text
	close(out)
	return out, nil
}
