package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/deepscan/backend/pkg/circuitbreaker"
	"github.com/deepscan/backend/pkg/logger"
	"github.com/deepscan/backend/pkg/retry"
)

const systemPrompt = `You are the help assistant for a deepfake risk scanning service.
You answer questions about synthetic media, how deepfakes are made and detected,
and how to interpret scan results (probability, threat score, risk tier).

Your responses must:
1. Be factual and avoid speculation about specific individuals
2. Explain risk tiers plainly: High means probability above 0.75, Medium above 0.45, Low otherwise
3. Recommend human review for any consequential decision
4. Stay on topic; politely decline unrelated requests

Be concise and practical.`

// cannedAnswers handles the common questions without an API round trip and
// doubles as the fallback when no API key is configured.
var cannedAnswers = []struct {
	keywords []string
	answer   string
}{
	{
		keywords: []string{"what is a deepfake", "what are deepfakes"},
		answer: "A deepfake is media (video, audio, or images) generated or altered by AI to " +
			"depict events or speech that never happened. This service estimates how likely a " +
			"piece of media is synthetic and assigns it a risk tier.",
	},
	{
		keywords: []string{"threat score", "risk score"},
		answer: "The threat score is the model's synthetic-media probability scaled to 0-100. " +
			"Scores of 75 and above are High risk, 45-74 are Medium, and below 45 is Low. " +
			"Treat it as a signal for review, not a verdict.",
	},
	{
		keywords: []string{"how do i scan", "how to scan"},
		answer: "Submit a media URL or upload a file from the scan page. For URLs, the service " +
			"resolves the page to its underlying media before analysis. Up to five URLs can be " +
			"scanned at once in bulk mode.",
	},
	{
		keywords: []string{"is my data", "privacy"},
		answer: "Scan history records keep the submitted URL, the detected media type, and the " +
			"risk verdict. Uploaded file bytes are sent to the analysis service and are not " +
			"retained after the scan completes.",
	},
}

const defaultAnswer = "I can help with questions about deepfakes, how scanning works, and how " +
	"to read your results. Could you rephrase your question?"

type Config struct {
	Enabled   bool
	APIKey    string
	Model     string
	MaxTokens int
}

// Assistant answers user FAQ-style questions, preferring canned answers and
// falling back to the chat model when one is configured.
type Assistant struct {
	client    *openai.Client
	model     string
	maxTokens int
	cb        *circuitbreaker.CircuitBreaker
	retryCfg  retry.Config
}

func New(cfg Config) *Assistant {
	a := &Assistant{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if a.model == "" {
		a.model = openai.GPT4oMini
	}
	if a.maxTokens == 0 {
		a.maxTokens = 500
	}

	if !cfg.Enabled || cfg.APIKey == "" {
		logger.Info("Assistant running in canned-answer mode")
		return a
	}

	a.client = openai.NewClient(cfg.APIKey)
	a.cb = circuitbreaker.NewCircuitBreaker("assistant", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})
	a.retryCfg = retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Assistant client initialized", zap.String("model", a.model))
	return a
}

// Ask answers one user question. Model failures degrade to the default
// canned answer rather than surfacing an error to the user.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return defaultAnswer, nil
	}

	if answer, ok := lookupCanned(question); ok {
		return answer, nil
	}

	if a.client == nil {
		return defaultAnswer, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var answer string
	err := a.cb.Execute(ctx, func() error {
		return retry.Do(ctx, a.retryCfg, func() error {
			resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:     a.model,
				MaxTokens: a.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: question},
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			answer = resp.Choices[0].Message.Content
			logger.Debug("Assistant answer generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			return nil
		})
	})
	if err != nil {
		logger.Warn("Assistant completion failed, using fallback answer", zap.Error(err))
		return defaultAnswer, nil
	}

	return answer, nil
}

func lookupCanned(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, entry := range cannedAnswers {
		for _, keyword := range entry.keywords {
			if strings.Contains(q, keyword) {
				return entry.answer, true
			}
		}
	}
	return "", false
}
