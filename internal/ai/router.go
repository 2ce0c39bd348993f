package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// CampaignSummary is the router's view of one candidate campaign,
// including live performance stats.
type CampaignSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TargetPersona string `json:"persona"`
	LeadCount     int    `json:"lead_count"`
	MaxLeads      int    `json:"max_leads"`
	EmailsSent    int    `json:"emails_sent"`
	OpenRate      string `json:"open_rate"`
	ReplyRate     string `json:"reply_rate"`
}

const routerSystemPromptBase = `You are a campaign routing agent for an outbound email system.

Your job is to decide where to route a newly enriched lead:
1. **add_to_existing** - Add to an existing active campaign that fits this lead's persona
2. **create_new** - No suitable campaign exists; suggest creating a new one
%s
Decision guidelines:
- Match leads to campaigns by persona/category and platform alignment
- Prefer campaigns that are accepting leads and under capacity (max_leads)
- Consider campaign performance: avoid campaigns with very low reply rates (<1%%) unless they're new
%s
- When creating a new campaign, suggest a clear persona and a descriptive campaign name
- Be concise in your reasoning (1-2 sentences max)

Return ONLY valid JSON matching one of these shapes:
{ "action": "add_to_existing", "campaign_id": "<id>", "reason": "..." }
{ "action": "create_new", "new_campaign": { "name": "...", "description": "...", "target_persona": "..." }, "reason": "..." }
%s`

// DetermineCampaign asks the model where to route an enriched lead. In
// auto mode the model may skip low-fit leads; otherwise skip is not
// offered and the suggestion always names a campaign for human review.
func DetermineCampaign(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, lead model.Lead, campaigns []CampaignSummary, company model.Company, autoMode bool) (*model.RoutingDecision, error) {
	// No email means nothing to route, regardless of mode.
	if !lead.HasEmail() {
		reason := "Lead has no email address"
		return &model.RoutingDecision{Action: model.RoutingActionSkip, Reason: reason}, nil
	}

	var skipOption, skipGuideline, skipShape string
	if autoMode {
		skipOption = "3. **skip** - Lead is not worth emailing (low fit score, irrelevant)\n"
		skipGuideline = "- A lead with fit_score <= 3 should generally be skipped\n"
		skipShape = `{ "action": "skip", "reason": "..." }` + "\n"
	} else {
		skipGuideline = "- NEVER skip a lead. Always suggest an existing campaign or create a new one. The user will decide whether to skip.\n"
	}
	systemPrompt := fmt.Sprintf(routerSystemPromptBase, skipOption, skipGuideline, skipShape)

	campaignContext := "No active campaigns exist yet."
	if len(campaigns) > 0 {
		b, err := json.MarshalIndent(campaigns, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "ai: marshal campaign summaries")
		}
		campaignContext = string(b)
	}

	userPrompt := fmt.Sprintf(`Route this lead to a campaign.

**Lead:**
- Name: %s
- Email: %s
- Category: %s
- Platform: %s
- Bio: %s
- Expertise: %s
- Audience: %s
- Content Types: %s
- Fit Score: %s/10
- Fit Reason: %s

**Company:** %s
- Description: %s
- Target Audience: %s

**Available Campaigns (%d):**
%s`,
		strOr(lead.FullName, "Unknown"),
		*lead.Email,
		strOr(lead.Category, "unknown"),
		strOr(lead.Platform, "unknown"),
		strOr(lead.Bio, "N/A"),
		joinOr(lead.Expertise, "N/A"),
		intOr(lead.TotalAudience, "Unknown"),
		joinOr(lead.ContentTypes, "N/A"),
		intOr(lead.FitScore, "N/A"),
		strOr(lead.FitReason, "N/A"),
		company.Name, company.Description, company.TargetAudience,
		len(campaigns), campaignContext)

	temp := 0.3
	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       cfg.HaikuModel,
		MaxTokens:   1024,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: determine campaign")
	}
	resp.Usage.LogCost(cfg.HaikuModel, "route lead")

	var decision model.RoutingDecision
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &decision); err != nil {
		return nil, eris.Wrap(err, "ai: parse routing decision")
	}
	return &decision, validateDecision(&decision, autoMode)
}

func validateDecision(d *model.RoutingDecision, autoMode bool) error {
	switch d.Action {
	case model.RoutingActionAddToExisting:
		if d.CampaignID == nil || *d.CampaignID == "" {
			return eris.New("ai: add_to_existing decision missing campaign_id")
		}
	case model.RoutingActionCreateNew:
		if d.NewCampaign == nil || d.NewCampaign.Name == "" {
			return eris.New("ai: create_new decision missing new_campaign")
		}
	case model.RoutingActionSkip:
		if !autoMode {
			return eris.New("ai: skip decision returned outside auto mode")
		}
	default:
		return eris.Errorf("ai: unknown routing action %q", d.Action)
	}
	if d.Reason == "" {
		return eris.New("ai: routing decision missing reason")
	}
	return nil
}

func strOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func intOr(n *int, fallback string) string {
	if n == nil {
		return fallback
	}
	return fmt.Sprintf("%d", *n)
}
