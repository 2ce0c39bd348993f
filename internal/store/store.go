// Package store persists the outreach pipeline's state. Two backends
// implement the same interface: PostgreSQL via pgxpool for deployments
// and SQLite via modernc.org/sqlite for local use and tests.
package store

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// NoLimit disables the default row cap on a lead listing.
const NoLimit = -1

// LeadFilter specifies criteria for listing leads. CompanyID scopes
// through the owning query; zero-valued fields are ignored. A zero
// Limit caps the result at 100 rows; pass NoLimit to list everything.
type LeadFilter struct {
	CompanyID        string                 `json:"company_id,omitempty"`
	QueryID          string                 `json:"query_id,omitempty"`
	EnrichmentStatus model.EnrichmentStatus `json:"enrichment_status,omitempty"`
	CampaignStatus   model.CampaignStatus   `json:"campaign_status,omitempty"`
	HasSuggestion    *bool                  `json:"has_suggestion,omitempty"`
	Limit            int                    `json:"limit,omitempty"`
}

// DigestCounts aggregates lead activity for the daily digest window.
type DigestCounts struct {
	LeadsFound    int `json:"leads_found"`
	LeadsEnriched int `json:"leads_enriched"`
	LeadsRouted   int `json:"leads_routed"`
	LeadsSkipped  int `json:"leads_skipped"`
	PendingReview int `json:"pending_review"`
}

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, company model.Company) (*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)
	UpdateCompany(ctx context.Context, company model.Company) error

	// Instructions
	CreateInstruction(ctx context.Context, companyID, content string) (*model.Instruction, error)
	ListPendingInstructions(ctx context.Context, companyID string) ([]model.Instruction, error)
	MarkInstructionConsumed(ctx context.Context, id string) error

	// Queries
	CreateQuery(ctx context.Context, query model.Query) (*model.Query, error)
	GetQuery(ctx context.Context, id string) (*model.Query, error)
	ListActiveQueries(ctx context.Context, companyID string) ([]model.Query, error)
	UpdateQueryStatus(ctx context.Context, id string, status model.QueryStatus) error
	DeactivateQuery(ctx context.Context, id string) error
	QueryYields(ctx context.Context, companyID string, limit int) ([]model.QueryYield, error)

	// Discovery runs
	CreateDiscoveryRun(ctx context.Context, queryID, websetID string) (*model.DiscoveryRun, error)
	UpdateDiscoveryRunItems(ctx context.Context, id string, itemsFound int) error
	CompleteDiscoveryRun(ctx context.Context, id string, status model.DiscoveryRunStatus, itemsFound int) error

	// Leads. InsertLeads drops rows whose URL or email already exists
	// and reports how many were actually stored.
	InsertLeads(ctx context.Context, leads []model.Lead) (int, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	MarkLeadEnriching(ctx context.Context, id string) error
	SaveLeadEnrichment(ctx context.Context, id string, persona model.Persona, email *string) error
	MarkLeadEnrichmentFailed(ctx context.Context, id string) error
	SaveRoutingSuggestion(ctx context.Context, id string, campaignID *string, reason string) error
	// MarkLeadRouted binds a pending lead to a campaign and bumps the
	// campaign's lead count. Returns false when the lead was already
	// routed or skipped, so repeated confirmations are no-ops.
	MarkLeadRouted(ctx context.Context, id, campaignID string) (bool, error)
	MarkLeadSkipped(ctx context.Context, id, reason string) error

	// Campaigns
	CreateCampaign(ctx context.Context, campaign model.Campaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListActiveCampaigns(ctx context.Context, companyID string) ([]model.Campaign, error)
	ListLinkedCampaigns(ctx context.Context) ([]model.Campaign, error)
	UpdateCampaignStats(ctx context.Context, id string, stats model.CampaignStats) error
	SetCampaignAccepting(ctx context.Context, id string, accepting bool) error

	// Campaign emails
	SaveCampaignEmails(ctx context.Context, campaignID string, emails []model.CampaignEmail) error
	ListCampaignEmails(ctx context.Context, campaignID string) ([]model.CampaignEmail, error)

	// Digests
	DigestCounts(ctx context.Context, companyID string, since time.Time) (*DigestCounts, error)
	SaveDigest(ctx context.Context, digest model.DailyDigest) (*model.DailyDigest, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
