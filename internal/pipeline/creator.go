package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/ai"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/instantly"
)

// materializeCampaign turns a router proposal into a live campaign:
// email copy is generated, the campaign is created and activated on
// the sending provider, and both are persisted.
func (p *Pipeline) materializeCampaign(ctx context.Context, company model.Company, proposal model.NewCampaignProposal) (*model.Campaign, error) {
	seq, err := ai.GenerateEmailSequence(ctx, p.ai, p.cfg.Anthropic, ai.EmailCopyParams{
		CompanyName:        company.Name,
		CompanyDescription: company.Description,
		ValueProposition:   company.Description,
		TargetPersona:      proposal.TargetPersona,
		SequenceLength:     company.SequenceLength(),
		CustomPrompt:       company.EmailPrompt,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: generate email sequence")
	}

	steps := make([]instantly.SequenceStep, 0, 3)
	for _, s := range seq.Steps() {
		steps = append(steps, instantly.SequenceStep{
			Subject:   s.Subject,
			Body:      s.Body,
			DelayDays: s.DelayDays,
		})
	}

	remote, err := p.instantly.CreateCampaign(ctx, instantly.CreateCampaignRequest{
		Name:      proposal.Name,
		EmailList: company.SendingEmails,
		Sequence:  steps,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create provider campaign")
	}

	campaign, err := p.store.CreateCampaign(ctx, model.Campaign{
		CompanyID:           company.ID,
		Name:                proposal.Name,
		Description:         proposal.Description,
		InstantlyCampaignID: &remote.ID,
		TargetPersona:       proposal.TargetPersona,
		Status:              model.CampaignStateActive,
		IsAcceptingLeads:    true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: store campaign")
	}

	emails := make([]model.CampaignEmail, 0, len(steps))
	for i, s := range seq.Steps() {
		emails = append(emails, model.CampaignEmail{
			CampaignID: campaign.ID,
			Step:       i,
			Subject:    s.Subject,
			Body:       s.Body,
			DelayDays:  s.DelayDays,
		})
	}
	if err := p.store.SaveCampaignEmails(ctx, campaign.ID, emails); err != nil {
		return nil, eris.Wrap(err, "pipeline: store campaign emails")
	}

	if err := p.instantly.ActivateCampaign(ctx, remote.ID); err != nil {
		return nil, eris.Wrap(err, "pipeline: activate campaign")
	}

	zap.L().Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("instantly_id", remote.ID),
		zap.String("name", campaign.Name),
		zap.Int("sequence_steps", len(steps)))
	return campaign, nil
}
