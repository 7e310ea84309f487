package llm

import (
	"context"

	"github.com/seonho-lim/aide/pkg/logging"
)

// FailoverClient wraps a primary LLM client with a fallback provider.
// If the primary fails, it automatically retries with the fallback.
type FailoverClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFailoverClient creates a failover-enabled client. If fallback is nil,
// the client only uses the primary provider.
func NewFailoverClient(primary, fallback Client, logger *logging.Logger) *FailoverClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Complete sends a completion request to the primary provider and retries
// with the fallback when the primary fails.
func (c *FailoverClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}
