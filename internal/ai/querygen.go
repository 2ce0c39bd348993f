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

// GeneratedQuery is the structured output of query generation.
type GeneratedQuery struct {
	Query     string   `json:"query"`
	Criteria  []string `json:"criteria"`
	Rationale string   `json:"rationale"`
}

const focusedQuerySystemPrompt = `You are an agent that generates search queries for finding potential leads with a webset search API.

The user has given you a SPECIFIC instruction. Generate ONE highly targeted query that DIRECTLY addresses this instruction.

The query should find people who:
- Have social media presence (TikTok, Instagram, YouTube, Twitter, LinkedIn)
- Have contact information available
- Would be good targets for cold outreach
- MOST IMPORTANTLY: Match the user's specific instruction

Return ONLY valid JSON:
{
  "query": "the search query string",
  "criteria": ["criterion 1", "criterion 2", "criterion 3"],
  "rationale": "how this query addresses the user's instruction"
}`

const explorationQuerySystemPrompt = `You are an agent that generates ONE search query per day for finding potential leads with a webset search API.

Since the user has no new specific instructions, your job is to CREATIVELY EXPLORE new lead segments.

Look at past queries and find a COMPLETELY DIFFERENT angle:
- Different platform (TikTok, YouTube, Instagram, Twitter, LinkedIn, podcasts, blogs)
- Different audience segment (beginners, pros, niche specialists)
- Different content type (coaches, influencers, educators, reviewers)
- Different geographic or demographic angle

The query should find people who:
- Have social media presence
- Have contact information available
- Would be good targets for cold outreach
- Are DIFFERENT from what past queries targeted

Return ONLY valid JSON:
{
  "query": "the search query string",
  "criteria": ["criterion 1", "criterion 2", "criterion 3"],
  "rationale": "what new segment this explores"
}`

// GenerateFocusedQuery builds one query that directly targets a user
// instruction.
func GenerateFocusedQuery(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, company model.Company, instruction string) (*GeneratedQuery, error) {
	userPrompt := fmt.Sprintf(`**Company Profile:**
Name: %s
Website: %s
Description: %s
Target Audience: %s

**USER'S SPECIFIC INSTRUCTION:**
%q

Generate ONE query that DIRECTLY targets what the user is asking for. Be specific and precise.`,
		company.Name, company.Website, company.Description, company.TargetAudience, instruction)

	return generateQuery(ctx, client, cfg, focusedQuerySystemPrompt, userPrompt, "focused query")
}

// GenerateExplorationQuery builds one creative query when no unprocessed
// instruction exists. Past query yields are passed as negative context so
// the model explores a new angle.
func GenerateExplorationQuery(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, company model.Company, pastQueries []model.QueryYield) (*GeneratedQuery, error) {
	pastContext := "No past queries yet - this is the first one!"
	if len(pastQueries) > 0 {
		var lines []string
		for i, q := range pastQueries {
			lines = append(lines, fmt.Sprintf("%d. %q (found %d leads)", i+1, q.Query, q.LeadsFound))
		}
		pastContext = strings.Join(lines, "\n")
	}

	notes := ""
	if company.AgentNotes != "" {
		notes = "Notes: " + company.AgentNotes + "\n"
	}

	userPrompt := fmt.Sprintf(`**Company Profile:**
Name: %s
Website: %s
Description: %s
Target Audience: %s
%s
**Past Queries (DO NOT REPEAT - find something NEW):**
%s

Generate ONE query that explores a COMPLETELY DIFFERENT angle. Be creative and specific.`,
		company.Name, company.Website, company.Description, company.TargetAudience, notes, pastContext)

	return generateQuery(ctx, client, cfg, explorationQuerySystemPrompt, userPrompt, "exploration query")
}

func generateQuery(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, systemPrompt, userPrompt, phase string) (*GeneratedQuery, error) {
	temp := 0.7
	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       cfg.SonnetModel,
		MaxTokens:   1024,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: generate query")
	}
	resp.Usage.LogCost(cfg.SonnetModel, phase)

	var q GeneratedQuery
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &q); err != nil {
		return nil, eris.Wrap(err, "ai: parse generated query")
	}
	if q.Query == "" {
		return nil, eris.New("ai: generated query is empty")
	}
	return &q, nil
}
