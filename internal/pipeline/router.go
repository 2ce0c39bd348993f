package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/ai"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// routeBatchSize bounds how many enriched leads one pass routes per
// company.
const routeBatchSize = 200

// RouteLeads asks the router for a campaign decision on every enriched
// lead that has none. Decisions are persisted as non-binding
// suggestions; only the autopilot gate (enabled, fit score at or above
// the company threshold) attaches a lead without human confirmation.
func (p *Pipeline) RouteLeads(ctx context.Context) error {
	companies, err := p.store.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list companies")
	}

	for _, company := range companies {
		if err := p.routeForCompany(ctx, company); err != nil {
			zap.L().Error("routing batch failed",
				zap.String("company", company.Name), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) routeForCompany(ctx context.Context, company model.Company) error {
	noSuggestion := false
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{
		CompanyID:        company.ID,
		EnrichmentStatus: model.EnrichmentStatusEnriched,
		CampaignStatus:   model.CampaignStatusPending,
		HasSuggestion:    &noSuggestion,
		Limit:            routeBatchSize,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: list unrouted leads")
	}
	if len(leads) == 0 {
		return nil
	}

	campaigns, err := p.store.ListActiveCampaigns(ctx, company.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list active campaigns")
	}

	for _, lead := range leads {
		if err := p.routeLead(ctx, company, lead, &campaigns); err != nil {
			zap.L().Warn("lead routing failed",
				zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	return nil
}

// routeLead decides one lead. campaigns is shared across the batch so
// a campaign created for an earlier lead is visible to later ones.
func (p *Pipeline) routeLead(ctx context.Context, company model.Company, lead model.Lead, campaigns *[]model.Campaign) error {
	decision, err := ai.DetermineCampaign(ctx, p.ai, p.cfg.Anthropic, lead,
		campaignSummaries(*campaigns), company, company.AutopilotEnabled)
	if err != nil {
		return eris.Wrap(err, "pipeline: determine campaign")
	}

	switch decision.Action {
	case model.RoutingActionSkip:
		if err := p.store.MarkLeadSkipped(ctx, lead.ID, decision.Reason); err != nil {
			return eris.Wrap(err, "pipeline: mark skipped")
		}
		return nil

	case model.RoutingActionCreateNew:
		campaign, err := p.materializeCampaign(ctx, company, *decision.NewCampaign)
		if err != nil {
			return eris.Wrap(err, "pipeline: materialize campaign")
		}
		*campaigns = append(*campaigns, *campaign)
		if err := p.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, decision.Reason); err != nil {
			return eris.Wrap(err, "pipeline: save suggestion")
		}
		lead.SuggestedCampaignID = &campaign.ID

	case model.RoutingActionAddToExisting:
		if !campaignExists(*campaigns, *decision.CampaignID) {
			return eris.Errorf("router chose unknown campaign %s", *decision.CampaignID)
		}
		if err := p.store.SaveRoutingSuggestion(ctx, lead.ID, decision.CampaignID, decision.Reason); err != nil {
			return eris.Wrap(err, "pipeline: save suggestion")
		}
		lead.SuggestedCampaignID = decision.CampaignID
	}

	if p.autopilotApproves(company, lead, *campaigns) {
		if err := p.AttachLead(ctx, lead.ID); err != nil {
			return eris.Wrap(err, "pipeline: autopilot attach")
		}
		// Keep the batch's view of the campaign current so later
		// leads see the seat this one took.
		for i := range *campaigns {
			if (*campaigns)[i].ID == *lead.SuggestedCampaignID {
				(*campaigns)[i].LeadCount++
			}
		}
	}
	return nil
}

// autopilotApproves reports whether the lead clears the company's
// autopilot gate. A suggested campaign without capacity leaves the
// lead pending for manual review; that is the normal state of a full
// campaign, not a failure. AttachLead re-checks capacity against the
// store before binding.
func (p *Pipeline) autopilotApproves(company model.Company, lead model.Lead, campaigns []model.Campaign) bool {
	if !company.AutopilotEnabled || lead.FitScore == nil || lead.SuggestedCampaignID == nil {
		return false
	}
	if *lead.FitScore < company.MinFitScore() {
		return false
	}
	for _, c := range campaigns {
		if c.ID == *lead.SuggestedCampaignID {
			return c.HasCapacity()
		}
	}
	return false
}

func campaignSummaries(campaigns []model.Campaign) []ai.CampaignSummary {
	summaries := make([]ai.CampaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		stats := model.CampaignStats{
			LeadCount:  c.LeadCount,
			SentCount:  c.SentCount,
			OpenCount:  c.OpenCount,
			ReplyCount: c.ReplyCount,
		}
		summaries = append(summaries, ai.CampaignSummary{
			ID:            c.ID,
			Name:          c.Name,
			TargetPersona: c.TargetPersona,
			LeadCount:     c.LeadCount,
			MaxLeads:      c.LeadLimit(),
			EmailsSent:    c.SentCount,
			OpenRate:      fmt.Sprintf("%.1f%%", stats.OpenRate()*100),
			ReplyRate:     fmt.Sprintf("%.1f%%", stats.ReplyRate()*100),
		})
	}
	return summaries
}

func campaignExists(campaigns []model.Campaign, id string) bool {
	for _, c := range campaigns {
		if c.ID == id {
			return true
		}
	}
	return false
}
