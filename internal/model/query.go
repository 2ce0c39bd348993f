package model

import "time"

// QueryStatus represents the lifecycle state of a search query.
type QueryStatus string

const (
	QueryStatusPending   QueryStatus = "pending"
	QueryStatusRunning   QueryStatus = "running"
	QueryStatusCompleted QueryStatus = "completed"
	QueryStatusFailed    QueryStatus = "failed"
)

// Query is a structured search directive generated for a company,
// either from an instruction (focused) or from creative exploration
// (SourceInstructionID nil).
type Query struct {
	ID                  string      `json:"id"`
	CompanyID           string      `json:"company_id"`
	Query               string      `json:"query"`
	Criteria            []string    `json:"criteria"`
	Rationale           string      `json:"rationale,omitempty"`
	SourceInstructionID *string     `json:"source_instruction_id,omitempty"`
	IsActive            bool        `json:"is_active"`
	Status              QueryStatus `json:"status"`
	LastRunAt           *time.Time  `json:"last_run_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// IsExploration reports whether the query was generated without a
// source instruction.
func (q Query) IsExploration() bool {
	return q.SourceInstructionID == nil
}

// QueryYield pairs a past query with the number of leads it produced.
// Supplied as negative context to exploration-mode generation.
type QueryYield struct {
	Query      string   `json:"query"`
	Criteria   []string `json:"criteria"`
	LeadsFound int      `json:"leads_found"`
}

// DiscoveryRunStatus represents the state of one webset execution.
type DiscoveryRunStatus string

const (
	DiscoveryRunStatusRunning   DiscoveryRunStatus = "running"
	DiscoveryRunStatusCompleted DiscoveryRunStatus = "completed"
	DiscoveryRunStatusFailed    DiscoveryRunStatus = "failed"
)

// DiscoveryRun records one submission of a query to the discovery
// provider. Historical runs are retained for audit.
type DiscoveryRun struct {
	ID          string             `json:"id"`
	QueryID     string             `json:"query_id"`
	WebsetID    string             `json:"webset_id"`
	Status      DiscoveryRunStatus `json:"status"`
	ItemsFound  int                `json:"items_found"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}
