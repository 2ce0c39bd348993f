package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/instantly"
)

func TestConfirmPending_AttachesSuggestedLeads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)

	lead := h.seedLead(t, query.ID, "https://tiktok.com/@coachamy", func(l *model.Lead) {
		l.Platform = strPtr(model.PlatformTikTok)
		l.FollowerCount = intPtr(12500)
	})
	h.enrichLead(t, lead.ID, 8, strPtr("amy@coachamy.example"))
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "persona match"))

	h.instantly.On("AddLeads", mock.Anything, "inst_seed", mock.MatchedBy(func(leads []instantly.Lead) bool {
		return len(leads) == 1 &&
			leads[0].Email == "amy@coachamy.example" &&
			leads[0].FirstName == "Amy" &&
			leads[0].LastName == "Ortega" &&
			leads[0].Variables["platform"] == model.PlatformTikTok &&
			leads[0].Variables["follower_count"] == "12500"
	})).Return(nil).Once()

	require.NoError(t, h.p.ConfirmPending(ctx, company.ID))

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusRouted, got.CampaignStatus)
	require.NotNil(t, got.CampaignID)
	assert.Equal(t, campaign.ID, *got.CampaignID)
	assert.NotNil(t, got.CampaignRoutedAt)

	gotCampaign, err := h.store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCampaign.LeadCount)

	h.instantly.AssertExpectations(t)
}

func TestAttachLead_SecondCallIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@coachamy")
	h.enrichLead(t, lead.ID, 8, strPtr("amy@coachamy.example"))
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "persona match"))

	h.instantly.On("AddLeads", mock.Anything, "inst_seed", mock.Anything).Return(nil).Once()

	require.NoError(t, h.p.AttachLead(ctx, lead.ID))
	require.NoError(t, h.p.AttachLead(ctx, lead.ID))

	gotCampaign, err := h.store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCampaign.LeadCount)

	h.instantly.AssertNumberOfCalls(t, "AddLeads", 1)
}

func TestAttachLead_RejectsFullCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID, func(c *model.Campaign) {
		c.MaxLeads = 1
	})
	require.NoError(t, h.store.UpdateCampaignStats(ctx, campaign.ID, model.CampaignStats{LeadCount: 1}))

	lead := h.seedLead(t, query.ID, "https://tiktok.com/@late")
	h.enrichLead(t, lead.ID, 8, strPtr("late@example.com"))
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "stale suggestion"))

	err := h.p.AttachLead(ctx, lead.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepting leads")

	got, err := h.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPending, got.CampaignStatus)

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
}

func TestAttachLead_RejectsPausedCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID, func(c *model.Campaign) {
		c.Status = model.CampaignStatePaused
	})

	lead := h.seedLead(t, query.ID, "https://tiktok.com/@paused")
	h.enrichLead(t, lead.ID, 8, strPtr("paused@example.com"))
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "stale suggestion"))

	err := h.p.AttachLead(ctx, lead.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepting leads")

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
}

func TestAttachLead_ClosesCampaignAtCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID, func(c *model.Campaign) {
		c.MaxLeads = 1
	})
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@lastseat")
	h.enrichLead(t, lead.ID, 8, strPtr("last@seat.example"))
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "persona match"))

	h.instantly.On("AddLeads", mock.Anything, "inst_seed", mock.Anything).Return(nil).Once()

	require.NoError(t, h.p.AttachLead(ctx, lead.ID))

	gotCampaign, err := h.store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCampaign.LeadCount)
	assert.False(t, gotCampaign.IsAcceptingLeads)
}

func TestAttachLead_RequiresEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	company := h.seedCompany(t)
	query := h.seedQuery(t, company.ID)
	campaign := h.seedCampaign(t, company.ID)
	lead := h.seedLead(t, query.ID, "https://tiktok.com/@noemail")
	h.enrichLead(t, lead.ID, 8, nil)
	require.NoError(t, h.store.SaveRoutingSuggestion(ctx, lead.ID, &campaign.ID, "persona match"))

	err := h.p.AttachLead(ctx, lead.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no email")

	h.instantly.AssertNotCalled(t, "AddLeads", mock.Anything, mock.Anything, mock.Anything)
}
