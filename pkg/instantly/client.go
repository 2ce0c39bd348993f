// Package instantly is a client for the Instantly V2 API.
// Docs: https://developer.instantly.ai/
package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.instantly.ai/api/v2"

	// maxRetryAttempts bounds automatic retries on transient API failures.
	maxRetryAttempts = 3
)

// Client performs campaign and lead operations against the Instantly API.
type Client interface {
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*Campaign, error)
	AddLeads(ctx context.Context, campaignID string, leads []Lead) error
	ActivateCampaign(ctx context.Context, campaignID string) error
	PauseCampaign(ctx context.Context, campaignID string) error
	GetAnalytics(ctx context.Context, campaignID string) (*Analytics, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// SequenceStep is one email in a campaign sequence. DelayDays applies
// before the step fires; the first step always sends immediately.
type SequenceStep struct {
	Subject   string
	Body      string
	DelayDays int
}

// Schedule constrains when the campaign sends.
type Schedule struct {
	Timezone string
	From     string // "09:00"
	To       string // "17:00"
	Days     map[string]bool
}

// DefaultSchedule sends on US Central business hours, weekdays only.
func DefaultSchedule() Schedule {
	return Schedule{
		Timezone: "America/Chicago",
		From:     "09:00",
		To:       "17:00",
		Days: map[string]bool{
			"0": false, "1": true, "2": true, "3": true,
			"4": true, "5": true, "6": false,
		},
	}
}

// CreateCampaignRequest holds the inputs for campaign creation.
type CreateCampaignRequest struct {
	Name        string
	EmailList   []string // sending email accounts
	Sequence    []SequenceStep
	Schedule    *Schedule
	DailyLimit  int
	StopOnReply *bool
}

// Campaign is the API's view of a campaign.
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status int    `json:"status"`
}

// Lead is one contact added to a campaign. Variables are flattened into
// the request body and become template variables in email copy.
type Lead struct {
	Email       string
	FirstName   string
	LastName    string
	CompanyName string
	Variables   map[string]string
}

// Analytics is the aggregate sending stats for a campaign.
type Analytics struct {
	Sent    int `json:"sent"`
	Opened  int `json:"opened"`
	Replied int `json:"replied"`
	Bounced int `json:"bounced"`
}

// Account is a connected sending mailbox.
type Account struct {
	Email        string `json:"email"`
	Status       int    `json:"status"`
	WarmupStatus int    `json:"warmup_status"`
	DailyLimit   *int   `json:"daily_limit"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. The API enforces its
// own limit; staying under it avoids burning retry budget on 429s.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Instantly V2 API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, error) {
	schedule := DefaultSchedule()
	if req.Schedule != nil {
		schedule = *req.Schedule
	}

	// The V2 format wraps each step's copy in a variants array and
	// expresses delays in minutes.
	steps := make([]map[string]any, 0, len(req.Sequence))
	for i, step := range req.Sequence {
		delayMinutes := 0
		if i > 0 {
			d := step.DelayDays
			if d <= 0 {
				d = 2
			}
			delayMinutes = d * 24 * 60
		}
		steps = append(steps, map[string]any{
			"type":  "email",
			"delay": delayMinutes,
			"variants": []map[string]string{
				{"subject": step.Subject, "body": step.Body},
			},
		})
	}

	dailyLimit := req.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = 50
	}
	stopOnReply := true
	if req.StopOnReply != nil {
		stopOnReply = *req.StopOnReply
	}

	body := map[string]any{
		"name": req.Name,
		"campaign_schedule": map[string]any{
			"schedules": []map[string]any{
				{
					"name":     "Default Schedule",
					"timing":   map[string]string{"from": schedule.From, "to": schedule.To},
					"days":     schedule.Days,
					"timezone": schedule.Timezone,
				},
			},
		},
		"sequences":     []map[string]any{{"steps": steps}},
		"email_list":    req.EmailList,
		"daily_limit":   dailyLimit,
		"stop_on_reply": stopOnReply,
		"text_only":     false,
		"link_tracking": true,
		"open_tracking": true,
	}

	var result Campaign
	if err := c.do(ctx, http.MethodPost, "/campaigns", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var result Campaign
	if err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) AddLeads(ctx context.Context, campaignID string, leads []Lead) error {
	if len(leads) == 0 {
		return nil
	}

	payload := make([]map[string]string, 0, len(leads))
	for _, lead := range leads {
		entry := map[string]string{
			"email":        lead.Email,
			"first_name":   lead.FirstName,
			"last_name":    lead.LastName,
			"company_name": lead.CompanyName,
		}
		for k, v := range lead.Variables {
			entry[k] = v
		}
		payload = append(payload, entry)
	}

	body := map[string]any{
		"campaign_id": campaignID,
		"leads":       payload,
	}
	return c.do(ctx, http.MethodPost, "/leads", body, nil)
}

func (c *httpClient) ActivateCampaign(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/activate", map[string]any{}, nil)
}

func (c *httpClient) PauseCampaign(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodPost, "/campaigns/"+url.PathEscape(campaignID)+"/pause", map[string]any{}, nil)
}

func (c *httpClient) GetAnalytics(ctx context.Context, campaignID string) (*Analytics, error) {
	var result Analytics
	path := "/campaigns/analytics?campaign_id=" + url.QueryEscape(campaignID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) ListAccounts(ctx context.Context) ([]Account, error) {
	var result struct {
		Items []Account `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, reqBody, out any) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = maxRetryAttempts
	cfg.InitialBackoff = 250 * time.Millisecond
	cfg.OnRetry = resilience.RetryLogger("instantly", method+" "+path)
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, reqBody, out)
	})
}

func (c *httpClient) doOnce(ctx context.Context, method, path string, reqBody, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "instantly: rate limit wait")
		}
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return eris.Wrap(err, "instantly: marshal request")
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "instantly: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "instantly: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "instantly: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := eris.Errorf("instantly: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "instantly: unmarshal response")
		}
	}
	return nil
}
