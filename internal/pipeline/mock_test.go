package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/exa"
	"github.com/sells-group/outreach-cli/pkg/instantly"
	"github.com/sells-group/outreach-cli/pkg/resend"
)

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a minimal response containing the given text.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

// mockExaClient implements exa.Client for testing.
type mockExaClient struct {
	mock.Mock
}

func (m *mockExaClient) CreateWebset(ctx context.Context, req exa.CreateWebsetRequest) (*exa.Webset, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exa.Webset), args.Error(1)
}

func (m *mockExaClient) GetWebset(ctx context.Context, websetID string) (*exa.Webset, error) {
	args := m.Called(ctx, websetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exa.Webset), args.Error(1)
}

func (m *mockExaClient) ListItems(ctx context.Context, websetID, cursor string, limit int) (*exa.ItemsPage, error) {
	args := m.Called(ctx, websetID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exa.ItemsPage), args.Error(1)
}

func (m *mockExaClient) ListAllItems(ctx context.Context, websetID string) ([]exa.WebsetItem, error) {
	args := m.Called(ctx, websetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exa.WebsetItem), args.Error(1)
}

// mockInstantlyClient implements instantly.Client for testing.
type mockInstantlyClient struct {
	mock.Mock
}

func (m *mockInstantlyClient) CreateCampaign(ctx context.Context, req instantly.CreateCampaignRequest) (*instantly.Campaign, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*instantly.Campaign), args.Error(1)
}

func (m *mockInstantlyClient) GetCampaign(ctx context.Context, campaignID string) (*instantly.Campaign, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*instantly.Campaign), args.Error(1)
}

func (m *mockInstantlyClient) AddLeads(ctx context.Context, campaignID string, leads []instantly.Lead) error {
	args := m.Called(ctx, campaignID, leads)
	return args.Error(0)
}

func (m *mockInstantlyClient) ActivateCampaign(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockInstantlyClient) PauseCampaign(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func (m *mockInstantlyClient) GetAnalytics(ctx context.Context, campaignID string) (*instantly.Analytics, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*instantly.Analytics), args.Error(1)
}

func (m *mockInstantlyClient) ListAccounts(ctx context.Context) ([]instantly.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]instantly.Account), args.Error(1)
}

// mockResendClient implements resend.Client for testing.
type mockResendClient struct {
	mock.Mock
}

func (m *mockResendClient) Send(ctx context.Context, req resend.SendRequest) (*resend.SendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendResponse), args.Error(1)
}

// harness bundles a pipeline over a real SQLite store and mocked
// provider clients.
type harness struct {
	p         *Pipeline
	store     store.Store
	ai        *mockAnthropicClient
	exa       *mockExaClient
	instantly *mockInstantlyClient
	resend    *mockResendClient
	cfg       *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		Anthropic: config.AnthropicConfig{
			Key:         "test-key",
			HaikuModel:  "claude-haiku-4-5-20251001",
			SonnetModel: "claude-sonnet-4-5-20250929",
		},
		Resend: config.ResendConfig{FromEmail: "digest@outreach.example"},
		Discovery: config.DiscoveryConfig{
			ResultCount:     25,
			PollAttempts:    5,
			PollIntervalSec: 1,
		},
		Pipeline: config.PipelineConfig{
			EnrichConcurrency: 2,
			EnrichRetries:     1,
			AttachConcurrency: 2,
		},
	}

	h := &harness{
		store:     s,
		ai:        new(mockAnthropicClient),
		exa:       new(mockExaClient),
		instantly: new(mockInstantlyClient),
		resend:    new(mockResendClient),
		cfg:       cfg,
	}
	h.p = New(s, h.ai, h.exa, h.instantly, h.resend, cfg)
	// Poll loops should not wait in tests.
	h.p.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) seedCompany(t *testing.T, mutate ...func(*model.Company)) *model.Company {
	t.Helper()
	c := model.Company{
		Name:           "LineLeap",
		Website:        "https://lineleap.example",
		Description:    "Self-tape audition app",
		TargetAudience: "working actors",
		SendingEmails:  []string{"outreach@lineleap.example"},
	}
	for _, m := range mutate {
		m(&c)
	}
	created, err := h.store.CreateCompany(context.Background(), c)
	require.NoError(t, err)
	return created
}

func (h *harness) seedQuery(t *testing.T, companyID string) *model.Query {
	t.Helper()
	q, err := h.store.CreateQuery(context.Background(), model.Query{
		CompanyID: companyID,
		Query:     "acting coaches on TikTok",
		Criteria:  []string{"over 5k followers"},
	})
	require.NoError(t, err)
	return q
}

func (h *harness) seedLead(t *testing.T, queryID, url string, mutate ...func(*model.Lead)) *model.Lead {
	t.Helper()
	ctx := context.Background()
	lead := model.Lead{QueryID: queryID, URL: url}
	for _, m := range mutate {
		m(&lead)
	}
	n, err := h.store.InsertLeads(ctx, []model.Lead{lead})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	leads, err := h.store.ListLeads(ctx, store.LeadFilter{QueryID: queryID})
	require.NoError(t, err)
	for i := range leads {
		if leads[i].URL == url {
			return &leads[i]
		}
	}
	t.Fatalf("seeded lead %s not found", url)
	return nil
}

func (h *harness) seedCampaign(t *testing.T, companyID string, mutate ...func(*model.Campaign)) *model.Campaign {
	t.Helper()
	c := model.Campaign{
		CompanyID:           companyID,
		Name:                "Acting Coaches",
		InstantlyCampaignID: strPtr("inst_seed"),
		TargetPersona:       "acting coaches",
		Status:              model.CampaignStateActive,
		IsAcceptingLeads:    true,
	}
	for _, m := range mutate {
		m(&c)
	}
	created, err := h.store.CreateCampaign(context.Background(), c)
	require.NoError(t, err)
	return created
}

// enrichLead walks a lead through the enrichment state machine so
// routing tests start from an enriched lead.
func (h *harness) enrichLead(t *testing.T, leadID string, fitScore int, email *string) *model.Lead {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.MarkLeadEnriching(ctx, leadID))
	require.NoError(t, h.store.SaveLeadEnrichment(ctx, leadID, model.Persona{
		Category:  "coach",
		FullName:  "Amy Ortega",
		FitScore:  fitScore,
		FitReason: "audience overlap",
	}, email))
	lead, err := h.store.GetLead(ctx, leadID)
	require.NoError(t, err)
	return lead
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }
