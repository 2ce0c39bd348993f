package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// maxEnrichmentChars caps how much enrichment payload goes to the model.
const maxEnrichmentChars = 3000

const extractEmailSystemPrompt = `Extract the most relevant contact email address from this data. Return JSON: { "email": "found@email.com" } or { "email": null } if none found. Pick personal/business emails over generic support emails when possible.`

// ExtractEmail pulls a contact email out of an arbitrary discovery
// enrichment payload using a fast model. Returns nil when no email is
// present. The payload is checked for an "@" first so data that cannot
// contain an email never costs a model call. Extraction failures are
// swallowed: a missing email is an expected outcome, not an error.
func ExtractEmail(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, enrichmentData any) *string {
	if enrichmentData == nil {
		return nil
	}

	raw, err := json.Marshal(enrichmentData)
	if err != nil {
		return nil
	}
	dataStr := string(raw)
	if !strings.Contains(dataStr, "@") {
		return nil
	}
	if len(dataStr) > maxEnrichmentChars {
		dataStr = dataStr[:maxEnrichmentChars]
	}

	temp := 0.0
	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       cfg.HaikuModel,
		MaxTokens:   256,
		System:      []anthropic.SystemBlock{{Text: extractEmailSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: dataStr}},
		Temperature: &temp,
	})
	if err != nil {
		return nil
	}
	resp.Usage.LogCost(cfg.HaikuModel, "extract email")

	var result struct {
		Email *string `json:"email"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &result); err != nil {
		return nil
	}
	if result.Email == nil || !strings.Contains(*result.Email, "@") {
		return nil
	}
	return result.Email
}
