// Package pipeline orchestrates the outreach flow: query generation,
// lead discovery, enrichment, campaign routing, confirmation, and the
// analytics and digest syncs.
package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/exa"
	"github.com/sells-group/outreach-cli/pkg/instantly"
	"github.com/sells-group/outreach-cli/pkg/resend"
)

// Pipeline wires the store and provider clients together. Every stage
// is a method so the scheduler and the CLI commands share one
// implementation.
type Pipeline struct {
	store     store.Store
	ai        anthropic.Client
	exa       exa.Client
	instantly instantly.Client
	resend    resend.Client
	cfg       *config.Config

	// sleep and now are injectable so poll loops and staleness checks
	// run instantly in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a Pipeline over the given store and clients.
func New(st store.Store, aiClient anthropic.Client, exaClient exa.Client, instantlyClient instantly.Client, resendClient resend.Client, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:     st,
		ai:        aiClient,
		exa:       exaClient,
		instantly: instantlyClient,
		resend:    resendClient,
		cfg:       cfg,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
