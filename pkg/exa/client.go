// Package exa is a client for the Exa Websets API.
// Docs: https://docs.exa.ai/websets/api/overview
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.exa.ai"

	// maxRetryAttempts bounds automatic retries on transient API failures.
	maxRetryAttempts = 3
)

// Webset statuses reported by the API.
const (
	WebsetStatusIdle    = "idle"
	WebsetStatusRunning = "running"
	WebsetStatusPaused  = "paused"
)

// Enrichment formats accepted by webset creation.
const (
	EnrichmentFormatText   = "text"
	EnrichmentFormatEmail  = "email"
	EnrichmentFormatNumber = "number"
)

// Client performs webset operations against the Exa API.
type Client interface {
	CreateWebset(ctx context.Context, req CreateWebsetRequest) (*Webset, error)
	GetWebset(ctx context.Context, websetID string) (*Webset, error)
	ListItems(ctx context.Context, websetID, cursor string, limit int) (*ItemsPage, error)
	ListAllItems(ctx context.Context, websetID string) ([]WebsetItem, error)
}

// CreateWebsetRequest is the request body for POST /websets/v0/websets.
type CreateWebsetRequest struct {
	Search      WebsetSearch `json:"search"`
	Enrichments []Enrichment `json:"enrichments,omitempty"`
}

// WebsetSearch describes the search a webset runs.
type WebsetSearch struct {
	Query    string      `json:"query"`
	Count    int         `json:"count,omitempty"`
	Criteria []Criterion `json:"criteria,omitempty"`
}

// Criterion is a natural-language filter applied to search results.
type Criterion struct {
	Description string `json:"description"`
}

// Enrichment asks the API to extract a field from each result.
type Enrichment struct {
	Description string `json:"description"`
	Format      string `json:"format,omitempty"`
}

// Webset is the API's view of a webset and its progress.
type Webset struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Searches  []SearchProgress  `json:"searches,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SearchProgress reports how far one search within a webset has gotten.
type SearchProgress struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress struct {
		Found      int     `json:"found"`
		Completion float64 `json:"completion"`
	} `json:"progress"`
}

// Found returns the total result count across the webset's searches.
func (w *Webset) Found() int {
	total := 0
	for _, s := range w.Searches {
		total += s.Progress.Found
	}
	return total
}

// IsIdle reports whether the webset has finished processing.
func (w *Webset) IsIdle() bool {
	return w.Status == WebsetStatusIdle
}

// WebsetItem is a single search result with its enrichment results.
// Enrichments is left untyped: the API has shipped several shapes for it
// and the extraction layer type-switches over them.
type WebsetItem struct {
	ID          string         `json:"id"`
	Properties  ItemProperties `json:"properties"`
	Enrichments any            `json:"enrichments,omitempty"`
}

// ItemProperties holds the core fields of a webset item.
type ItemProperties struct {
	Type        string  `json:"type,omitempty"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
	Person      *Person `json:"person,omitempty"`
}

// Person is present when the item resolved to an individual.
type Person struct {
	Name       string `json:"name,omitempty"`
	Location   string `json:"location,omitempty"`
	Position   string `json:"position,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// ItemsPage is one page of GET /websets/v0/websets/{id}/items.
type ItemsPage struct {
	Data       []WebsetItem `json:"data"`
	HasMore    bool         `json:"hasMore"`
	NextCursor string       `json:"nextCursor,omitempty"`
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

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Exa Websets API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
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

func (c *httpClient) CreateWebset(ctx context.Context, req CreateWebsetRequest) (*Webset, error) {
	var result Webset
	if err := c.do(ctx, http.MethodPost, "/websets/v0/websets", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetWebset(ctx context.Context, websetID string) (*Webset, error) {
	var result Webset
	if err := c.do(ctx, http.MethodGet, "/websets/v0/websets/"+url.PathEscape(websetID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) ListItems(ctx context.Context, websetID, cursor string, limit int) (*ItemsPage, error) {
	path := "/websets/v0/websets/" + url.PathEscape(websetID) + "/items"
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result ItemsPage
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAllItems walks the cursor pagination until the last page.
func (c *httpClient) ListAllItems(ctx context.Context, websetID string) ([]WebsetItem, error) {
	var items []WebsetItem
	cursor := ""
	for {
		page, err := c.ListItems(ctx, websetID, cursor, 100)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Data...)
		if !page.HasMore || page.NextCursor == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, reqBody, out any) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = maxRetryAttempts
	cfg.InitialBackoff = 250 * time.Millisecond
	cfg.OnRetry = resilience.RetryLogger("exa", method+" "+path)
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, reqBody, out)
	})
}

func (c *httpClient) doOnce(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return eris.Wrap(err, "exa: marshal request")
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "exa: create request")
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "exa: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "exa: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := eris.Errorf("exa: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, fmt.Sprintf("exa: unmarshal %s response", method))
		}
	}
	return nil
}
