package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

func testCompany() model.Company {
	return model.Company{
		ID:             "comp_1",
		Name:           "LineLeap",
		Website:        "https://lineleap.example",
		Description:    "Self-tape audition app for actors",
		TargetAudience: "working actors and acting coaches",
	}
}

func TestGenerateFocusedQuery(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "acting coaches on TikTok") &&
			strings.Contains(req.System[0].Text, "SPECIFIC instruction")
	})).Return(textResponse(`{
		"query": "acting coaches on TikTok with self-tape content",
		"criteria": ["has over 5k followers", "posts audition advice", "US based"],
		"rationale": "targets the instruction directly"
	}`), nil)

	q, err := GenerateFocusedQuery(context.Background(), mc, testAIConfig(), testCompany(), "find acting coaches on TikTok")
	require.NoError(t, err)

	assert.Equal(t, "acting coaches on TikTok with self-tape content", q.Query)
	require.Len(t, q.Criteria, 3)
	assert.NotEmpty(t, q.Rationale)
	mc.AssertExpectations(t)
}

func TestGenerateExplorationQuery_IncludesPastQueries(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := req.Messages[0].Content
		return strings.Contains(prompt, `"acting coaches on TikTok" (found 12 leads)`) &&
			strings.Contains(prompt, "DO NOT REPEAT")
	})).Return(textResponse(`{
		"query": "theater podcast hosts interviewing working actors",
		"criteria": ["active podcast", "has guest contact process"],
		"rationale": "podcasts are an untouched channel"
	}`), nil)

	past := []model.QueryYield{
		{Query: "acting coaches on TikTok", LeadsFound: 12},
	}
	q, err := GenerateExplorationQuery(context.Background(), mc, testAIConfig(), testCompany(), past)
	require.NoError(t, err)
	assert.Contains(t, q.Query, "podcast")
	mc.AssertExpectations(t)
}

func TestGenerateExplorationQuery_NoHistory(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "No past queries yet")
	})).Return(textResponse(`{"query": "q", "criteria": ["c"], "rationale": "r"}`), nil)

	_, err := GenerateExplorationQuery(context.Background(), mc, testAIConfig(), testCompany(), nil)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestGenerateExplorationQuery_AgentNotes(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Notes: avoid fitness niches")
	})).Return(textResponse(`{"query": "q", "criteria": ["c"], "rationale": "r"}`), nil)

	company := testCompany()
	company.AgentNotes = "avoid fitness niches"
	_, err := GenerateExplorationQuery(context.Background(), mc, testAIConfig(), company, nil)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestGenerateQuery_CodeFencedResponse(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"query\": \"fenced\", \"criteria\": [], \"rationale\": \"r\"}\n```"), nil)

	q, err := GenerateFocusedQuery(context.Background(), mc, testAIConfig(), testCompany(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fenced", q.Query)
}

func TestGenerateQuery_EmptyQueryRejected(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"query": "", "criteria": [], "rationale": ""}`), nil)

	_, err := GenerateFocusedQuery(context.Background(), mc, testAIConfig(), testCompany(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestGenerateQuery_MalformedResponse(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("not json at all"), nil)

	_, err := GenerateFocusedQuery(context.Background(), mc, testAIConfig(), testCompany(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse generated query")
}
