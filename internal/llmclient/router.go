package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/api/schemas"
)

// Router holds one extractor per model tier. Components take the tier they
// need through For; the router itself is also an Extractor that defaults to
// the powerful tier.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.Extractor
}

var _ schemas.Extractor = (*Router)(nil)

// NewRouter creates a new router with the given clients for each tier.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient schemas.Extractor) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.Extractor{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// For returns the extractor bound to tier, falling back to the powerful tier
// for an unknown value.
func (r *Router) For(tier schemas.ModelTier) schemas.Extractor {
	if client, ok := r.clients[tier]; ok {
		return client
	}
	r.logger.Warn("No client for tier, using powerful tier.", zap.String("tier", string(tier)))
	return r.clients[schemas.TierPowerful]
}

// Extract routes to the powerful tier.
func (r *Router) Extract(ctx context.Context, prompt string, schema *schemas.Schema, out interface{}) error {
	return r.clients[schemas.TierPowerful].Extract(ctx, prompt, schema, out)
}
