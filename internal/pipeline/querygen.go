package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/ai"
	"github.com/sells-group/outreach-cli/internal/model"
)

// maxYieldHistory bounds how many past queries feed exploration mode.
const maxYieldHistory = 20

// GenerateQueries produces new search queries for every company. Each
// pending instruction becomes one focused query and is consumed; a
// company with no pending instructions gets a single exploration query
// instead, steered away from what it has already tried.
func (p *Pipeline) GenerateQueries(ctx context.Context) error {
	companies, err := p.store.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list companies")
	}

	for _, company := range companies {
		if err := p.generateForCompany(ctx, company); err != nil {
			zap.L().Error("query generation failed",
				zap.String("company", company.Name),
				zap.Error(err))
		}
	}
	return nil
}

// GenerateForCompany runs query generation for one company, for manual
// triggering.
func (p *Pipeline) GenerateForCompany(ctx context.Context, companyID string) error {
	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "pipeline: get company")
	}
	return p.generateForCompany(ctx, *company)
}

func (p *Pipeline) generateForCompany(ctx context.Context, company model.Company) error {
	instructions, err := p.store.ListPendingInstructions(ctx, company.ID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list pending instructions")
	}

	if len(instructions) == 0 {
		return p.generateExploration(ctx, company)
	}

	// Each instruction is its own step: one failing stays pending for
	// the next cycle without blocking the ones after it.
	for _, inst := range instructions {
		if err := p.generateFocused(ctx, company, inst); err != nil {
			zap.L().Warn("focused query failed, instruction kept pending",
				zap.String("company", company.Name),
				zap.String("instruction_id", inst.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) generateFocused(ctx context.Context, company model.Company, inst model.Instruction) error {
	gen, err := ai.GenerateFocusedQuery(ctx, p.ai, p.cfg.Anthropic, company, inst.Content)
	if err != nil {
		return eris.Wrap(err, "pipeline: focused query")
	}
	q, err := p.store.CreateQuery(ctx, model.Query{
		CompanyID:           company.ID,
		Query:               gen.Query,
		Criteria:            gen.Criteria,
		Rationale:           gen.Rationale,
		SourceInstructionID: &inst.ID,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: store focused query")
	}
	// Instructions are single-use: consumed the moment a query exists
	// for them.
	if err := p.store.MarkInstructionConsumed(ctx, inst.ID); err != nil {
		return eris.Wrap(err, "pipeline: consume instruction")
	}
	zap.L().Info("generated focused query",
		zap.String("company", company.Name),
		zap.String("query_id", q.ID),
		zap.String("query", q.Query))
	return nil
}

func (p *Pipeline) generateExploration(ctx context.Context, company model.Company) error {
	yields, err := p.store.QueryYields(ctx, company.ID, maxYieldHistory)
	if err != nil {
		return eris.Wrap(err, "pipeline: query yields")
	}

	gen, err := ai.GenerateExplorationQuery(ctx, p.ai, p.cfg.Anthropic, company, yields)
	if err != nil {
		return eris.Wrap(err, "pipeline: exploration query")
	}
	q, err := p.store.CreateQuery(ctx, model.Query{
		CompanyID: company.ID,
		Query:     gen.Query,
		Criteria:  gen.Criteria,
		Rationale: gen.Rationale,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: store exploration query")
	}
	zap.L().Info("generated exploration query",
		zap.String("company", company.Name),
		zap.String("query_id", q.ID),
		zap.String("query", q.Query))
	return nil
}
