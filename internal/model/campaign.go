package model

import "time"

// DefaultMaxLeads caps campaign membership when no explicit limit is
// configured.
const DefaultMaxLeads = 500

// CampaignState is the local lifecycle state of a campaign.
type CampaignState string

const (
	CampaignStateDraft     CampaignState = "draft"
	CampaignStateActive    CampaignState = "active"
	CampaignStatePaused    CampaignState = "paused"
	CampaignStateCompleted CampaignState = "completed"
)

// Campaign mirrors a sending campaign on the outbound provider. Counters
// are advisory and refreshed by the analytics sync.
type Campaign struct {
	ID                  string        `json:"id"`
	CompanyID           string        `json:"company_id"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	InstantlyCampaignID *string       `json:"instantly_campaign_id,omitempty"`
	TargetPersona       string        `json:"target_persona,omitempty"`
	Status              CampaignState `json:"status"`
	IsAcceptingLeads    bool          `json:"is_accepting_leads"`
	MaxLeads            int           `json:"max_leads"`
	LeadCount           int           `json:"lead_count"`
	SentCount           int           `json:"sent_count"`
	OpenCount           int           `json:"open_count"`
	ReplyCount          int           `json:"reply_count"`
	LastSyncedAt        *time.Time    `json:"last_synced_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// LeadLimit returns the effective membership cap.
func (c Campaign) LeadLimit() int {
	if c.MaxLeads <= 0 {
		return DefaultMaxLeads
	}
	return c.MaxLeads
}

// HasCapacity reports whether the campaign can accept another lead:
// active, accepting, and under its membership cap. Advisory only; the
// store re-checks before the binding attach.
func (c Campaign) HasCapacity() bool {
	return c.Status == CampaignStateActive && c.IsAcceptingLeads && c.LeadCount < c.LeadLimit()
}

// CampaignEmail is one step of a campaign's email sequence. Step 0 is
// the opener; follow-ups keep an empty subject so the provider threads
// them under the opener.
type CampaignEmail struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Step       int       `json:"step"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	DelayDays  int       `json:"delay_days"`
	CreatedAt  time.Time `json:"created_at"`
}

// CampaignStats is the analytics snapshot pulled from the outbound
// provider for one campaign.
type CampaignStats struct {
	LeadCount  int `json:"lead_count"`
	SentCount  int `json:"sent_count"`
	OpenCount  int `json:"open_count"`
	ReplyCount int `json:"reply_count"`
}

// OpenRate returns opens per sent email, 0 when nothing was sent.
func (s CampaignStats) OpenRate() float64 {
	if s.SentCount == 0 {
		return 0
	}
	return float64(s.OpenCount) / float64(s.SentCount)
}

// ReplyRate returns replies per sent email, 0 when nothing was sent.
func (s CampaignStats) ReplyRate() float64 {
	if s.SentCount == 0 {
		return 0
	}
	return float64(s.ReplyCount) / float64(s.SentCount)
}

// Routing actions the campaign router may choose.
const (
	RoutingActionAddToExisting = "add_to_existing"
	RoutingActionCreateNew     = "create_new"
	RoutingActionSkip          = "skip"
)

// RoutingDecision is the structured output of the routing AI call.
// CampaignID is set for add_to_existing; NewCampaign for create_new;
// Reason always.
type RoutingDecision struct {
	Action      string               `json:"action"`
	CampaignID  *string              `json:"campaign_id,omitempty"`
	NewCampaign *NewCampaignProposal `json:"new_campaign,omitempty"`
	Reason      string               `json:"reason"`
}

// NewCampaignProposal describes a campaign the router wants created.
type NewCampaignProposal struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	TargetPersona string `json:"target_persona"`
}
