package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/instantly"
)

// SyncAnalytics refreshes the stored counters of every campaign that
// is linked to a provider campaign. Failures on one campaign do not
// stop the sweep, but a run of consecutive provider failures trips a
// breaker and abandons the rest of the batch.
func (p *Pipeline) SyncAnalytics(ctx context.Context) error {
	campaigns, err := p.store.ListLinkedCampaigns(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list linked campaigns")
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
	})

	for _, campaign := range campaigns {
		analytics, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*instantly.Analytics, error) {
			return p.instantly.GetAnalytics(ctx, *campaign.InstantlyCampaignID)
		})
		if err != nil {
			if eris.Is(err, resilience.ErrCircuitOpen) {
				zap.L().Error("analytics provider unavailable, abandoning sweep",
					zap.String("campaign_id", campaign.ID))
				return eris.Wrap(err, "pipeline: analytics sweep")
			}
			zap.L().Warn("analytics fetch failed",
				zap.String("campaign_id", campaign.ID), zap.Error(err))
			continue
		}

		err = p.store.UpdateCampaignStats(ctx, campaign.ID, model.CampaignStats{
			LeadCount:  campaign.LeadCount,
			SentCount:  analytics.Sent,
			OpenCount:  analytics.Opened,
			ReplyCount: analytics.Replied,
		})
		if err != nil {
			zap.L().Warn("stats update failed",
				zap.String("campaign_id", campaign.ID), zap.Error(err))
			continue
		}

		zap.L().Debug("campaign stats synced",
			zap.String("campaign_id", campaign.ID),
			zap.Int("sent", analytics.Sent),
			zap.Int("replied", analytics.Replied))
	}
	return nil
}
