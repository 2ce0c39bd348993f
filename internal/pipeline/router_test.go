package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/instantly"
)

func TestRouteLeads_SuggestionIsNotBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@coachamy")
	h.enrichLead(t, lead.ID, 9, strPtr("amy@coachamy.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(fmt.Sprintf(
			`{"action": "add_to_existing", "campaign_id": %q, "reason": "persona match"}`, campaign.ID,
		)), nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SuggestedCampaignID)
	assert.Equal(t, campaign.ID, *got.SuggestedCampaignID)
	require.NotNil(t, got.SuggestedCampaignReason)
	assert.Equal(t, "persona match", *got.SuggestedCampaignReason)
	// Without autopilot the decision stays a suggestion.
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)
	assert.Nil(t, got.CampaignID)

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
	h.ai.AssertExpectations(t)
}

func TestRouteLeads_AutopilotAttachesHighFit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t, func(c *model.Company) {
		c.AutopilotEnabled = true
	})
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@coachamy")
	h.enrichLead(t, lead.ID, 8, strPtr("amy@coachamy.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(fmt.Sprintf(
			`{"action": "add_to_existing", "campaign_id": %q, "reason": "persona match"}`, campaign.ID,
		)), nil).Once()
	h.instantly.On("AddLeads", mock.Anything, "inst_seed", mock.MatchedBy(func(leads []instantly.Lead) bool {
		return len(leads) == 1 && leads[0].Email == "amy@coachamy.example" && leads[0].FirstName == "Amy"
	})).Return(nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusRouted, got.CampaignStatus)
	require.NotNil(t, got.CampaignID)
	assert.Equal(t, campaign.ID, *got.CampaignID)

	gotCampaign, err := h.store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCampaign.LeadCount)

	h.ai.AssertExpectations(t)
	h.instantly.AssertExpectations(t)
}

func TestRouteLeads_AutopilotRespectsFitThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t, func(c *model.Company) {
		c.AutopilotEnabled = true
	})
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@midfit")
	h.enrichLead(t, lead.ID, 5, strPtr("mid@fit.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(fmt.Sprintf(
			`{"action": "add_to_existing", "campaign_id": %q, "reason": "close enough"}`, campaign.ID,
		)), nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	// Fit 5 is under the default threshold of 7: suggested, not attached.
	require.NotNil(t, got.SuggestedCampaignID)
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouteLeads_AutopilotDefersWhenCampaignFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t, func(c *model.Company) {
		c.AutopilotEnabled = true
	})
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID, func(c *model.Campaign) {
		c.MaxLeads = 1
	})

	// Take the campaign's only seat so the next lead finds it full.
	seated := h.seedLead(t, query.ID, "https://tiktok.com/@seated")
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, seated.ID, &campaign.ID, "persona match"))
	routed, err := h.store.MarkLeadRouted(ctx, seated.ID, campaign.ID)
	require.NoError(t, err)
	require.True(t, routed)

	lead := h.seedLead(t, query.ID, "https://tiktok.com/@waitlisted")
	h.enrichLead(t, lead.ID, 8, strPtr("wait@listed.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(fmt.Sprintf(
			`{"action": "add_to_existing", "campaign_id": %q, "reason": "persona match"}`, campaign.ID,
		)), nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	// The full campaign stays a suggestion awaiting manual review, not
	// an autopilot attach.
	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SuggestedCampaignID)
	assert.Equal(t, campaign.ID, *got.SuggestedCampaignID)
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)

	gotCampaign, err := h.store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCampaign.LeadCount)

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
	h.ai.AssertExpectations(t)
}

func TestRouteLeads_CreateNewMaterializesCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://youtube.com/@newniche")
	h.enrichLead(t, lead.ID, 8, strPtr("new@niche.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(`{
			"action": "create_new",
			"new_campaign": {"name": "Audition Educators", "description": "YouTube audition educators", "target_persona": "audition educators"},
			"reason": "no fitting campaign"
		}`), nil).Once()
	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(sonnetCall)).
		Return(textResponse(`{
			"initial": {"subject": "Quick one on self-tapes", "body": "Hey {{first_name}}, saw your audition breakdowns."},
			"followUp1": {"subject": "ignored", "body": "Following up on self-tapes.", "delayDays": 3}
		}`), nil).Once()
	h.instantly.On("CreateCampaign", mock.Anything, mock.MatchedBy(func(req instantly.CreateCampaignRequest) bool {
		return req.Name == "Audition Educators" &&
			len(req.Sequence) == 2 &&
			req.Sequence[1].Subject == "" &&
			len(req.EmailList) == 1
	})).Return(&instantly.Campaign{ID: "inst_new"}, nil).Once()
	h.instantly.On("ActivateCampaign", mock.Anything, "inst_new").Return(nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	campaigns, err := h.store.ListActiveCampaigns(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	campaign := campaigns[0]
	assert.Equal(t, "Audition Educators", campaign.Name)
	require.NotNil(t, campaign.InstantlyCampaignID)
	assert.Equal(t, "inst_new", *campaign.InstantlyCampaignID)
	assert.Equal(t, model.CampaignStateActive, campaign.Status)
	assert.True(t, campaign.IsAcceptingLeads)

	emails, err := h.store.ListCampaignEmails(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, 0, emails[0].Step)
	assert.NotEmpty(t, emails[0].Subject)
	assert.Empty(t, emails[1].Subject)
	assert.Equal(t, 3, emails[1].DelayDays)

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SuggestedCampaignID)
	assert.Equal(t, campaign.ID, *got.SuggestedCampaignID)
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)

	h.ai.AssertExpectations(t)
	h.instantly.AssertExpectations(t)
}

func TestRouteLeads_AutopilotSkip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t, func(c *model.Company) {
		c.AutopilotEnabled = true
	})
	query := h.seedQuery(t, company.ID)
	h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://twitter.com/lowfit")
	h.enrichLead(t, lead.ID, 2, strPtr("low@fit.example"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return haikuCall(req) && strings.Contains(req.System[0].Text, "skip")
	})).Return(textResponse(`{"action": "skip", "reason": "fit score too low"}`), nil).Once()

	require.NoError(t, h.p.RouteLeads(ctx))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSkipped, got.CampaignStatus)
	require.NotNil(t, got.SkipReason)
	assert.Equal(t, "fit score too low", *got.SkipReason)

	h.ai.AssertExpectations(t)
}

func TestRouteLeads_UnknownCampaignLeavesLeadPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@lost")
	h.enrichLead(t, lead.ID, 8, strPtr("lost@example.com"))

	h.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(haikuCall)).
		Return(textResponse(`{"action": "add_to_existing", "campaign_id": "no-such-campaign", "reason": "hallucinated"}`), nil).Once()

	// A hallucinated campaign id is logged, not persisted.
	require.NoError(t, h.p.RouteLeads(ctx))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SuggestedCampaignID)
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)
}
