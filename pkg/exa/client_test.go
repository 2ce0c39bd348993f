package exa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWebset(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantID  string
	}{
		{
			name:   "success",
			status: http.StatusCreated,
			body:   `{"id": "webset_abc", "status": "running"}`,
			wantID: "webset_abc",
		},
		{
			name:    "payment_required_no_retry",
			status:  http.StatusPaymentRequired,
			body:    `{"error": "insufficient credits"}`,
			wantErr: "unexpected status 402",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/websets/v0/websets", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			ws, err := client.CreateWebset(context.Background(), CreateWebsetRequest{
				Search: WebsetSearch{
					Query:    "fitness creators on youtube",
					Count:    25,
					Criteria: []Criterion{{Description: "has over 10k subscribers"}},
				},
				Enrichments: []Enrichment{
					{Description: "Find the email address for this person", Format: EnrichmentFormatEmail},
				},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, ws)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, ws)
			assert.Equal(t, tt.wantID, ws.ID)
		})
	}
}

func TestCreateWebset_RequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

		search := raw["search"].(map[string]any)
		assert.Equal(t, "b2b saas founders", search["query"])
		assert.InDelta(t, 25, search["count"], 0.001)
		criteria := search["criteria"].([]any)
		require.Len(t, criteria, 1)
		assert.Equal(t, "actively posting", criteria[0].(map[string]any)["description"])

		enrichments := raw["enrichments"].([]any)
		require.Len(t, enrichments, 2)
		assert.Equal(t, "email", enrichments[0].(map[string]any)["format"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"webset_1","status":"running"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.CreateWebset(context.Background(), CreateWebsetRequest{
		Search: WebsetSearch{
			Query:    "b2b saas founders",
			Count:    25,
			Criteria: []Criterion{{Description: "actively posting"}},
		},
		Enrichments: []Enrichment{
			{Description: "Find the email address for this person", Format: EnrichmentFormatEmail},
			{Description: "Extract the follower count", Format: EnrichmentFormatNumber},
		},
	})
	require.NoError(t, err)
}

func TestGetWebset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/websets/v0/websets/webset_abc", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "webset_abc",
			"status": "idle",
			"searches": [
				{"id": "search_1", "status": "completed", "progress": {"found": 17, "completion": 1.0}},
				{"id": "search_2", "status": "completed", "progress": {"found": 8, "completion": 1.0}}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	ws, err := client.GetWebset(context.Background(), "webset_abc")
	require.NoError(t, err)

	assert.True(t, ws.IsIdle())
	assert.Equal(t, 25, ws.Found())
}

func TestListItems_Pagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/websets/v0/websets/webset_abc/items", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			assert.Empty(t, r.URL.Query().Get("cursor"))
			_, _ = w.Write([]byte(`{
				"data": [
					{"id": "item_1", "properties": {"url": "https://youtube.com/@fit", "description": "fitness"}},
					{"id": "item_2", "properties": {"url": "https://tiktok.com/@run"}}
				],
				"hasMore": true,
				"nextCursor": "cur_2"
			}`))
			return
		}
		assert.Equal(t, "cur_2", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{
			"data": [{"id": "item_3", "properties": {"url": "https://instagram.com/yoga", "person": {"name": "Ada Yoga"}}}],
			"hasMore": false
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	items, err := client.ListAllItems(context.Background(), "webset_abc")
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "item_1", items[0].ID)
	assert.Equal(t, "https://tiktok.com/@run", items[1].Properties.URL)
	require.NotNil(t, items[2].Properties.Person)
	assert.Equal(t, "Ada Yoga", items[2].Properties.Person.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListItems_EnrichmentShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "a", "properties": {"url": "https://x.com/a"}, "enrichments": "a@example.com"},
				{"id": "b", "properties": {"url": "https://x.com/b"}, "enrichments": [{"format": "email", "result": ["b@example.com"]}]},
				{"id": "c", "properties": {"url": "https://x.com/c"}, "enrichments": {"email": {"value": "c@example.com"}}}
			],
			"hasMore": false
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	page, err := client.ListItems(context.Background(), "webset_abc", "", 0)
	require.NoError(t, err)

	// All three historical enrichment payload shapes survive decoding.
	require.Len(t, page.Data, 3)
	assert.Equal(t, "a@example.com", page.Data[0].Enrichments)
	assert.IsType(t, []any{}, page.Data[1].Enrichments)
	assert.IsType(t, map[string]any{}, page.Data[2].Enrichments)
}

func TestRetries5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"webset_retry","status":"running"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	ws, err := client.GetWebset(context.Background(), "webset_retry")
	require.NoError(t, err)
	assert.Equal(t, "webset_retry", ws.ID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GetWebset(context.Background(), "webset_bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GetWebset(context.Background(), "webset_down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(maxRetryAttempts), attempts.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.NotNil(t, hc.http)
	assert.NotNil(t, hc.http.Transport)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	customClient := &http.Client{}
	c := NewClient("test-key", WithHTTPClient(customClient))
	hc := c.(*httpClient)
	assert.Equal(t, customClient, hc.http)
}
