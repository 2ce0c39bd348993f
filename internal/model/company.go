package model

import "time"

// DefaultAutopilotMinFitScore is the fit-score floor applied when a
// company has autopilot enabled but no explicit threshold configured.
const DefaultAutopilotMinFitScore = 7

// Company is a tenant of the outreach pipeline. It owns queries, leads
// (transitively through queries), and campaigns.
type Company struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Website               string    `json:"website"`
	Description           string    `json:"description"`
	TargetAudience        string    `json:"target_audience"`
	AgentNotes            string    `json:"agent_notes,omitempty"`
	SendingEmails         []string  `json:"sending_emails,omitempty"`
	DefaultSequenceLength int       `json:"default_sequence_length"`
	EmailPrompt           *string   `json:"email_prompt,omitempty"`
	AutopilotEnabled      bool      `json:"autopilot_enabled"`
	AutopilotMinFitScore  int       `json:"autopilot_min_fit_score"`
	DigestRecipients      []string  `json:"digest_recipients,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MinFitScore returns the autopilot threshold, falling back to the
// default when unset.
func (c Company) MinFitScore() int {
	if c.AutopilotMinFitScore <= 0 {
		return DefaultAutopilotMinFitScore
	}
	return c.AutopilotMinFitScore
}

// SequenceLength returns the email sequence length clamped to the
// supported 1-3 range.
func (c Company) SequenceLength() int {
	n := c.DefaultSequenceLength
	if n < 1 {
		return 2
	}
	if n > 3 {
		return 3
	}
	return n
}

// Instruction is a user-supplied targeting directive. It is consumed
// exactly once by the query generator, which flips QueryGenerated.
type Instruction struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	Content        string    `json:"content"`
	QueryGenerated bool      `json:"query_generated"`
	CreatedAt      time.Time `json:"created_at"`
}
