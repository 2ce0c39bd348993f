package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// maxLeadDataChars caps how much raw discovery data goes into the prompt.
const maxLeadDataChars = 5000

const enrichSystemPrompt = `You are a lead enrichment specialist. You'll receive raw data about a lead discovered from web searches, plus context about the company reaching out to them.

Your task:
1. Figure out who this lead is from the raw data
2. Find their contact email in the raw data if present
3. Identify social media profiles and audience sizes
4. Understand what content they create
5. Score how good a fit they are for the company

Be thorough but concise. Return ONLY valid JSON.`

// EnrichLead derives a structured persona from raw discovery data. Parsing
// is field-tolerant: a malformed field falls back to its default instead of
// failing the whole enrichment.
func EnrichLead(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, leadData map[string]any, company model.Company) (*model.Persona, error) {
	raw, err := json.Marshal(leadData)
	if err != nil {
		return nil, eris.Wrap(err, "ai: marshal lead data")
	}
	rawStr := string(raw)
	if len(rawStr) > maxLeadDataChars {
		rawStr = rawStr[:maxLeadDataChars]
	}

	userPrompt := fmt.Sprintf(`Enrich this lead:

**Raw Lead Data:**
%s

**Company Context (who wants to reach them):**
- Company: %s
- What they do: %s
- Target audience: %s

Return JSON with these fields:
1. **category**: What they are (influencer, coach, blog, agency, podcast, or anything else that fits)
2. **full_name**: Their actual name
3. **title**: Professional title (e.g., "Acting Coach", "Podcast Host")
4. **bio**: 2-3 sentence summary
5. **expertise**: Array of expertise areas
6. **social_links**: Object mapping platform to profile URL
7. **total_audience**: Total followers/subscribers across platforms (number)
8. **content_types**: Array of content they create
9. **fit_score**: 1-10 fit score for %s
10. **fit_reason**: Brief explanation
11. **email**: Contact email address from the raw data, or null if absent

Return ONLY valid JSON.`,
		rawStr, company.Name, company.Description, company.TargetAudience, company.Name)

	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     cfg.SonnetModel,
		MaxTokens: 2048,
		System: []anthropic.SystemBlock{
			{Text: enrichSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: enrich lead")
	}
	resp.Usage.LogCost(cfg.SonnetModel, "enrich lead")

	return parsePersona(resp.Text())
}

// parsePersona decodes the enrichment response with per-field repair.
func parsePersona(text string) (*model.Persona, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "ai: parse enrichment response")
	}

	p := &model.Persona{
		Category: "other",
		FullName: "Unknown",
		FitScore: 5,
	}

	decodeField(raw, "category", &p.Category)
	decodeField(raw, "full_name", &p.FullName)
	decodeField(raw, "title", &p.Title)
	decodeField(raw, "bio", &p.Bio)
	decodeField(raw, "expertise", &p.Expertise)
	decodeField(raw, "total_audience", &p.TotalAudience)
	decodeField(raw, "content_types", &p.ContentTypes)
	decodeField(raw, "fit_score", &p.FitScore)
	decodeField(raw, "fit_reason", &p.FitReason)

	// social_links may contain null values for missing platforms.
	if b, ok := raw["social_links"]; ok {
		var links map[string]*string
		if err := json.Unmarshal(b, &links); err == nil {
			p.SocialLinks = make(map[string]string, len(links))
			for platform, u := range links {
				if u != nil && *u != "" {
					p.SocialLinks[platform] = *u
				}
			}
		}
	}

	if b, ok := raw["email"]; ok {
		var email *string
		if err := json.Unmarshal(b, &email); err == nil && email != nil && *email != "" {
			p.Email = email
		}
	}

	if p.Category == "" {
		p.Category = "other"
	}
	if p.FullName == "" {
		p.FullName = "Unknown"
	}
	if p.FitScore < 1 || p.FitScore > 10 {
		p.FitScore = 5
	}
	if p.TotalAudience < 0 {
		p.TotalAudience = 0
	}

	return p, nil
}

// decodeField unmarshals one field, keeping the destination's current value
// when the field is absent or the wrong type.
func decodeField[T any](raw map[string]json.RawMessage, key string, dst *T) {
	b, ok := raw[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		zap.L().Debug("enrichment field malformed, using default",
			zap.String("field", key),
			zap.Error(err),
		)
		return
	}
	*dst = v
}
