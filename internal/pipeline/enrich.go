package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/ai"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// enrichBatchSize bounds how many pending leads one pass picks up per
// company.
const enrichBatchSize = 200

// enrichStaleAfter is how long a lead may sit at enriching before it is
// treated as abandoned by a crashed worker and picked up again.
const enrichStaleAfter = 15 * time.Minute

// enrichmentStale reports whether an enriching lead has been held past
// the staleness window. A missing timestamp counts as stale so rows
// written before the timestamp existed are still reclaimed.
func (p *Pipeline) enrichmentStale(lead model.Lead) bool {
	if lead.EnrichingAt == nil {
		return true
	}
	return p.now().Sub(*lead.EnrichingAt) > enrichStaleAfter
}

// EnrichLeads runs AI enrichment over every pending lead. Leads are
// processed per company (the company context shapes the fit score)
// with bounded concurrency; a lead that fails after retries is marked
// failed rather than blocking the batch.
func (p *Pipeline) EnrichLeads(ctx context.Context) error {
	companies, err := p.store.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list companies")
	}

	for _, company := range companies {
		if err := p.enrichForCompany(ctx, company); err != nil {
			zap.L().Error("enrichment batch failed",
				zap.String("company", company.Name), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) enrichForCompany(ctx context.Context, company model.Company) error {
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{
		CompanyID:        company.ID,
		EnrichmentStatus: model.EnrichmentStatusPending,
		Limit:            enrichBatchSize,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: list pending leads")
	}

	// Reclaim leads a crashed worker left at enriching past the
	// staleness window.
	stuck, err := p.store.ListLeads(ctx, store.LeadFilter{
		CompanyID:        company.ID,
		EnrichmentStatus: model.EnrichmentStatusEnriching,
		Limit:            enrichBatchSize,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: list enriching leads")
	}
	for _, lead := range stuck {
		if p.enrichmentStale(lead) {
			leads = append(leads, lead)
		}
	}
	if len(leads) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.EnrichConcurrency)

	for _, lead := range leads {
		lead := lead
		g.Go(func() error {
			if err := p.enrichLead(gctx, company, lead); err != nil {
				zap.L().Warn("lead enrichment failed",
					zap.String("lead_id", lead.ID),
					zap.String("url", lead.URL),
					zap.Error(err))
				if markErr := p.store.MarkLeadEnrichmentFailed(gctx, lead.ID); markErr != nil {
					zap.L().Error("marking lead failed", zap.String("lead_id", lead.ID), zap.Error(markErr))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: enrichment group")
	}

	zap.L().Info("enrichment batch done",
		zap.String("company", company.Name),
		zap.Int("leads", len(leads)))
	return nil
}

func (p *Pipeline) enrichLead(ctx context.Context, company model.Company, lead model.Lead) error {
	if err := p.store.MarkLeadEnriching(ctx, lead.ID); err != nil {
		return eris.Wrap(err, "pipeline: mark enriching")
	}

	// Malformed model output is retriable nondeterminism, so every
	// error is retried here, not just transport ones.
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    p.cfg.Pipeline.EnrichRetries + 1,
		InitialBackoff: time.Second,
		ShouldRetry:    func(error) bool { return true },
		OnRetry:        resilience.RetryLogger("anthropic", "enrich lead"),
	}
	persona, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*model.Persona, error) {
		return ai.EnrichLead(ctx, p.ai, p.cfg.Anthropic, lead.DiscoveryData, company)
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: enrich lead")
	}

	// Email precedence: discovery-time beats the persona's, which
	// beats the fast extraction over raw enrichment data.
	email := persona.Email
	if !lead.HasEmail() && email == nil {
		if data, ok := lead.DiscoveryData["enrichments"]; ok {
			email = ai.ExtractEmail(ctx, p.ai, p.cfg.Anthropic, data)
		}
	}

	if err := p.store.SaveLeadEnrichment(ctx, lead.ID, *persona, email); err != nil {
		return eris.Wrap(err, "pipeline: save enrichment")
	}

	// A lead with no address anywhere cannot be contacted. Skipping
	// here keeps the router's candidate set all-contactable.
	if !lead.HasEmail() && email == nil {
		if err := p.store.MarkLeadSkipped(ctx, lead.ID, "no contact email found"); err != nil {
			return eris.Wrap(err, "pipeline: skip emailless lead")
		}
		zap.L().Info("lead skipped, no email",
			zap.String("lead_id", lead.ID), zap.String("url", lead.URL))
	}
	return nil
}

// EnrichOne enriches a single pending lead and, when it is contactable,
// routes it immediately. This is the path behind the per-lead trigger
// and the enrichment job queue.
func (p *Pipeline) EnrichOne(ctx context.Context, leadID string) error {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get lead")
	}
	if lead.EnrichmentStatus == model.EnrichmentStatusEnriched {
		return nil
	}
	// An in-flight lead is left to its worker; a stale one was
	// abandoned mid-enrichment and is safe to pick up again.
	if lead.EnrichmentStatus == model.EnrichmentStatusEnriching && !p.enrichmentStale(*lead) {
		return nil
	}

	query, err := p.store.GetQuery(ctx, lead.QueryID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get query")
	}
	company, err := p.store.GetCompany(ctx, query.CompanyID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get company")
	}

	if err := p.enrichLead(ctx, *company, *lead); err != nil {
		if markErr := p.store.MarkLeadEnrichmentFailed(ctx, lead.ID); markErr != nil {
			zap.L().Error("marking lead failed", zap.String("lead_id", lead.ID), zap.Error(markErr))
		}
		return err
	}

	fresh, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrap(err, "pipeline: reload lead")
	}
	if fresh.CampaignStatus != model.CampaignStatusPending {
		return nil
	}

	campaigns, err := p.store.ListActiveCampaigns(ctx, company.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list active campaigns")
	}
	return p.routeLead(ctx, *company, *fresh, &campaigns)
}
