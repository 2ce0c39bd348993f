package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/instantly"
)

// ConfirmPending attaches every lead of the company that carries a
// campaign suggestion and is still awaiting confirmation.
func (p *Pipeline) ConfirmPending(ctx context.Context, companyID string) error {
	hasSuggestion := true
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{
		CompanyID:        companyID,
		EnrichmentStatus: model.EnrichmentStatusEnriched,
		CampaignStatus:   model.CampaignStatusPending,
		HasSuggestion:    &hasSuggestion,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: list suggested leads")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.AttachConcurrency)
	for _, lead := range leads {
		lead := lead
		g.Go(func() error {
			if err := p.AttachLead(gctx, lead.ID); err != nil {
				zap.L().Warn("attach failed",
					zap.String("lead_id", lead.ID), zap.Error(err))
			}
			return nil
		})
	}
	return eris.Wrap(g.Wait(), "pipeline: confirm group")
}

// AttachLead is the binding step: it re-reads lead and campaign,
// re-checks capacity, pushes the contact to the sending provider, and
// marks the lead routed. Safe to call twice; the second call is a
// no-op.
func (p *Pipeline) AttachLead(ctx context.Context, leadID string) error {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get lead")
	}
	if lead.CampaignStatus != model.CampaignStatusPending {
		return nil
	}
	if lead.SuggestedCampaignID == nil {
		return eris.Errorf("lead %s has no campaign suggestion", leadID)
	}
	if !lead.HasEmail() {
		return eris.Errorf("lead %s has no email", leadID)
	}

	campaign, err := p.store.GetCampaign(ctx, *lead.SuggestedCampaignID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get campaign")
	}
	if campaign.InstantlyCampaignID == nil {
		return eris.Errorf("campaign %s has no provider campaign", campaign.ID)
	}
	// Capacity is re-checked at attach time; the suggestion may be
	// stale.
	if !campaign.HasCapacity() {
		return eris.Errorf("campaign %s is not accepting leads", campaign.ID)
	}

	if err := p.instantly.AddLeads(ctx, *campaign.InstantlyCampaignID, []instantly.Lead{providerLead(*lead)}); err != nil {
		return eris.Wrap(err, "pipeline: add lead to provider")
	}

	routed, err := p.store.MarkLeadRouted(ctx, lead.ID, campaign.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: mark routed")
	}
	if !routed {
		return nil
	}

	if campaign.LeadCount+1 >= campaign.LeadLimit() {
		if err := p.store.SetCampaignAccepting(ctx, campaign.ID, false); err != nil {
			return eris.Wrap(err, "pipeline: close full campaign")
		}
		zap.L().Info("campaign full", zap.String("campaign_id", campaign.ID))
	}

	zap.L().Info("lead attached",
		zap.String("lead_id", lead.ID),
		zap.String("campaign_id", campaign.ID))
	return nil
}

// providerLead converts a lead row into the sending provider's shape.
func providerLead(lead model.Lead) instantly.Lead {
	out := instantly.Lead{
		Email:     *lead.Email,
		FirstName: lead.FirstName(),
		Variables: map[string]string{},
	}
	if lead.FullName != nil {
		if _, rest, ok := strings.Cut(*lead.FullName, " "); ok {
			out.LastName = rest
		}
	}
	if lead.Platform != nil {
		out.Variables["platform"] = *lead.Platform
	}
	if lead.FollowerCount != nil {
		out.Variables["follower_count"] = strconv.Itoa(*lead.FollowerCount)
	}
	if lead.Category != nil {
		out.Variables["category"] = *lead.Category
	}
	return out
}
