package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/exa"
)

// RunDiscovery runs the freshest pending query of every company: it
// submits a webset, polls it to completion, and stores the results as
// leads. Duplicate URLs and emails are dropped by the store. One query
// per company per pass keeps the daily discovery volume bounded.
func (p *Pipeline) RunDiscovery(ctx context.Context) error {
	companies, err := p.store.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list companies")
	}

	for _, company := range companies {
		queries, err := p.store.ListActiveQueries(ctx, company.ID)
		if err != nil {
			zap.L().Error("listing queries failed",
				zap.String("company", company.Name), zap.Error(err))
			continue
		}
		query := latestPending(queries)
		if query == nil {
			zap.L().Debug("no pending query", zap.String("company", company.Name))
			continue
		}
		if err := p.runQuery(ctx, *query); err != nil {
			zap.L().Error("discovery run failed",
				zap.String("company", company.Name),
				zap.String("query_id", query.ID),
				zap.Error(err))
		}
	}
	return nil
}

// latestPending picks the most recently created pending query.
func latestPending(queries []model.Query) *model.Query {
	var pick *model.Query
	for i := range queries {
		if queries[i].Status != model.QueryStatusPending {
			continue
		}
		if pick == nil || queries[i].CreatedAt.After(pick.CreatedAt) {
			pick = &queries[i]
		}
	}
	return pick
}

// RunQuery executes one query by ID, for manual triggering.
func (p *Pipeline) RunQuery(ctx context.Context, queryID string) error {
	query, err := p.store.GetQuery(ctx, queryID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get query")
	}
	return p.runQuery(ctx, *query)
}

func (p *Pipeline) runQuery(ctx context.Context, query model.Query) error {
	criteria := make([]exa.Criterion, 0, len(query.Criteria))
	for _, c := range query.Criteria {
		criteria = append(criteria, exa.Criterion{Description: c})
	}

	webset, err := p.exa.CreateWebset(ctx, exa.CreateWebsetRequest{
		Search: exa.WebsetSearch{
			Query:    query.Query,
			Count:    p.cfg.Discovery.ResultCount,
			Criteria: criteria,
		},
		Enrichments: []exa.Enrichment{
			{Description: "Email address for contacting this person or account", Format: exa.EnrichmentFormatEmail},
			{Description: "Total follower or subscriber count on their primary platform", Format: exa.EnrichmentFormatNumber},
		},
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: create webset")
	}

	run, err := p.store.CreateDiscoveryRun(ctx, query.ID, webset.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: create discovery run")
	}
	if err := p.store.UpdateQueryStatus(ctx, query.ID, model.QueryStatusRunning); err != nil {
		return eris.Wrap(err, "pipeline: mark query running")
	}

	zap.L().Info("webset created",
		zap.String("query_id", query.ID),
		zap.String("webset_id", webset.ID))

	final, err := p.pollWebset(ctx, webset.ID, run.ID)
	if err != nil {
		_ = p.store.CompleteDiscoveryRun(ctx, run.ID, model.DiscoveryRunStatusFailed, 0)
		_ = p.store.UpdateQueryStatus(ctx, query.ID, model.QueryStatusFailed)
		return eris.Wrap(err, "pipeline: poll webset")
	}

	items, err := p.exa.ListAllItems(ctx, webset.ID)
	if err != nil {
		_ = p.store.CompleteDiscoveryRun(ctx, run.ID, model.DiscoveryRunStatusFailed, final.Found())
		_ = p.store.UpdateQueryStatus(ctx, query.ID, model.QueryStatusFailed)
		return eris.Wrap(err, "pipeline: list webset items")
	}

	leads := leadsFromItems(items, query.ID, run.ID)
	inserted, err := p.store.InsertLeads(ctx, leads)
	if err != nil {
		_ = p.store.CompleteDiscoveryRun(ctx, run.ID, model.DiscoveryRunStatusFailed, len(items))
		_ = p.store.UpdateQueryStatus(ctx, query.ID, model.QueryStatusFailed)
		return eris.Wrap(err, "pipeline: insert leads")
	}

	if err := p.store.CompleteDiscoveryRun(ctx, run.ID, model.DiscoveryRunStatusCompleted, len(items)); err != nil {
		return eris.Wrap(err, "pipeline: complete discovery run")
	}
	if err := p.store.UpdateQueryStatus(ctx, query.ID, model.QueryStatusCompleted); err != nil {
		return eris.Wrap(err, "pipeline: mark query completed")
	}

	zap.L().Info("discovery completed",
		zap.String("query_id", query.ID),
		zap.Int("items", len(items)),
		zap.Int("new_leads", inserted),
		zap.Int("duplicates", len(items)-inserted))
	return nil
}

// pollWebset waits for the webset to go idle, recording progress on
// the discovery run as it goes. The attempt budget and interval come
// from configuration.
func (p *Pipeline) pollWebset(ctx context.Context, websetID, runID string) (*exa.Webset, error) {
	interval := time.Duration(p.cfg.Discovery.PollIntervalSec) * time.Second

	var webset *exa.Webset
	for attempt := 0; attempt < p.cfg.Discovery.PollAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, interval); err != nil {
				return nil, err
			}
		}

		var err error
		webset, err = p.exa.GetWebset(ctx, websetID)
		if err != nil {
			return nil, err
		}

		if found := webset.Found(); found > 0 {
			_ = p.store.UpdateDiscoveryRunItems(ctx, runID, found)
		}
		if webset.IsIdle() {
			return webset, nil
		}
	}
	return nil, eris.Errorf("webset %s not idle after %d polls", websetID, p.cfg.Discovery.PollAttempts)
}
