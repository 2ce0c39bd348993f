package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExtractEmail_NilData(t *testing.T) {
	mc := new(mockAnthropicClient)
	assert.Nil(t, ExtractEmail(context.Background(), mc, testAIConfig(), nil))
	mc.AssertNotCalled(t, "CreateMessage")
}

func TestExtractEmail_NoAtSymbol_SkipsModelCall(t *testing.T) {
	mc := new(mockAnthropicClient)
	data := map[string]any{"followers": 12000, "platform": "tiktok"}
	assert.Nil(t, ExtractEmail(context.Background(), mc, testAIConfig(), data))
	mc.AssertNotCalled(t, "CreateMessage")
}

func TestExtractEmail_Found(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"email": "ada@example.com"}`), nil)

	data := []any{map[string]any{"format": "email", "result": []string{"ada@example.com"}}}
	email := ExtractEmail(context.Background(), mc, testAIConfig(), data)
	require.NotNil(t, email)
	assert.Equal(t, "ada@example.com", *email)
	mc.AssertExpectations(t)
}

func TestExtractEmail_ModelSaysNull(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"email": null}`), nil)

	data := map[string]any{"bio": "contact: see @handle on instagram"}
	assert.Nil(t, ExtractEmail(context.Background(), mc, testAIConfig(), data))
}

func TestExtractEmail_ModelErrorSwallowed(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("api down"))

	data := map[string]any{"contact": "maybe@example.com"}
	assert.Nil(t, ExtractEmail(context.Background(), mc, testAIConfig(), data))
}

func TestExtractEmail_RejectsNonEmailAnswer(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"email": "no email found"}`), nil)

	data := map[string]any{"contact": "x@y.com"}
	assert.Nil(t, ExtractEmail(context.Background(), mc, testAIConfig(), data))
}
