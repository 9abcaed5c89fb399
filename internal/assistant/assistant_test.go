package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk_CannedAnswers(t *testing.T) {
	a := New(Config{Enabled: false})

	tests := []struct {
		question string
		contains string
	}{
		{question: "What is a deepfake?", contains: "generated or altered by AI"},
		{question: "how should I read the threat score", contains: "0-100"},
		{question: "How do I scan a video?", contains: "Submit a media URL"},
		{question: "what happens to my data / privacy?", contains: "not retained"},
	}

	for _, tt := range tests {
		answer, err := a.Ask(context.Background(), tt.question)
		require.NoError(t, err)
		assert.Contains(t, answer, tt.contains, "question: %s", tt.question)
	}
}

func TestAsk_FallsBackWithoutModel(t *testing.T) {
	a := New(Config{Enabled: false})

	answer, err := a.Ask(context.Background(), "tell me about quantum gravity")
	require.NoError(t, err)
	assert.Equal(t, defaultAnswer, answer)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	a := New(Config{Enabled: true, APIKey: "test-key"})

	answer, err := a.Ask(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, defaultAnswer, answer)
}

func TestAsk_CannedBeatsModel(t *testing.T) {
	// With a bogus key the client would fail; canned questions must never
	// reach it.
	a := New(Config{Enabled: true, APIKey: "bogus"})

	answer, err := a.Ask(context.Background(), "what are deepfakes exactly?")
	require.NoError(t, err)
	assert.Contains(t, answer, "generated or altered by AI")
}
