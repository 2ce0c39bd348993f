package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

func copyParams(length int) EmailCopyParams {
	return EmailCopyParams{
		CompanyName:        "LineLeap",
		CompanyDescription: "Self-tape audition app",
		ValueProposition:   "Cuts audition prep time in half",
		TargetPersona:      "acting coaches",
		SequenceLength:     length,
	}
}

func TestGenerateEmailSequence_ThreeEmails(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.System[0].Text, "followUp2") &&
			strings.Contains(req.Messages[0].Content, "3-email outreach sequence")
	})).Return(textResponse(`{
		"initial": {"subject": "Quick question about your coaching", "body": "Hey {{first_name}}, ..."},
		"followUp1": {"subject": "ignored", "body": "Bumping this.", "delayDays": 3},
		"followUp2": {"subject": "also ignored", "body": "Last note, calendar link: https://cal.example", "delayDays": 4}
	}`), nil)

	seq, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), copyParams(3))
	require.NoError(t, err)

	steps := seq.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, "Quick question about your coaching", steps[0].Subject)
	// Follow-up subjects are forced empty so the provider threads them.
	assert.Empty(t, steps[1].Subject)
	assert.Empty(t, steps[2].Subject)
	assert.Equal(t, 3, steps[1].DelayDays)
	assert.Equal(t, 4, steps[2].DelayDays)
	mc.AssertExpectations(t)
}

func TestGenerateEmailSequence_InitialOnly(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.System[0].Text, "ONLY the initial email") &&
			strings.Contains(req.Messages[0].Content, "1-email outreach sequence")
	})).Return(textResponse(`{"initial": {"subject": "Hello", "body": "Hey {{first_name}},"}}`), nil)

	seq, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), copyParams(1))
	require.NoError(t, err)
	assert.Len(t, seq.Steps(), 1)
	mc.AssertExpectations(t)
}

func TestGenerateEmailSequence_DefaultLengthIsTwo(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "2-email outreach sequence")
	})).Return(textResponse(`{
		"initial": {"subject": "Hi", "body": "Hey {{first_name}},"},
		"followUp1": {"subject": "", "body": "One more thing.", "delayDays": 3}
	}`), nil)

	seq, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), copyParams(0))
	require.NoError(t, err)
	assert.Len(t, seq.Steps(), 2)
}

func TestGenerateEmailSequence_CustomPrompt(t *testing.T) {
	custom := "Write emails as a pirate."
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.HasPrefix(req.System[0].Text, custom)
	})).Return(textResponse(`{
		"initial": {"subject": "Ahoy", "body": "Hey {{first_name}},"},
		"followUp1": {"subject": "", "body": "Arr.", "delayDays": 3}
	}`), nil)

	params := copyParams(2)
	params.CustomPrompt = &custom
	_, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), params)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestGenerateEmailSequence_DefaultDelays(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"initial": {"subject": "Hi", "body": "Hey {{first_name}},"},
		"followUp1": {"subject": "", "body": "Bump."},
		"followUp2": {"subject": "", "body": "Final."}
	}`), nil)

	seq, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), copyParams(3))
	require.NoError(t, err)
	assert.Equal(t, 3, seq.FollowUp1.DelayDays)
	assert.Equal(t, 4, seq.FollowUp2.DelayDays)
}

func TestGenerateEmailSequence_MissingInitial(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"followUp1": {"subject": "", "body": "orphan"}}`), nil)

	_, err := GenerateEmailSequence(context.Background(), mc, testAIConfig(), copyParams(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing initial email")
}
