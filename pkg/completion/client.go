package completion

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Request describes one chat-completion call. The prompt travels as the
// system message; the user message stays empty, mirroring how the upstream
// template embeds history and question into a single block.
type Request struct {
	Model            string
	Prompt           string
	MaxTokens        int
	Temperature      float32
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// Client is the narrow surface the pipeline needs from a completion provider.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Credentials is an immutable value holding provider credentials. It is
// passed in at construction; there is no package-global key state.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// OpenAIClient calls the OpenAI chat-completion endpoint with a bounded
// retry policy over transient provider errors.
type OpenAIClient struct {
	api    *openai.Client
	policy RetryPolicy
}

var _ Client = &OpenAIClient{}

// NewOpenAIClient builds a client from credentials and a retry policy.
func NewOpenAIClient(creds Credentials, policy RetryPolicy) (*OpenAIClient, error) {
	if creds.APIKey == "" {
		return nil, errors.New("completion: api key is empty")
	}
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}
	return &OpenAIClient{
		api:    openai.NewClientWithConfig(cfg),
		policy: policy,
	}, nil
}

// Complete issues the call, retrying transient provider errors up to the
// policy's attempt limit. Terminal errors propagate immediately.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("completion: model is empty")
	}

	var content string
	err := c.policy.Do(ctx, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: req.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: req.Prompt},
				{Role: openai.ChatMessageRoleUser, Content: ""},
			},
			MaxTokens:        req.MaxTokens,
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			PresencePenalty:  req.PresencePenalty,
			FrequencyPenalty: req.FrequencyPenalty,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion: provider returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("component", "completion").
		Str("model", req.Model).
		Int("response_chars", len(content)).
		Msg("completion call succeeded")
	return content, nil
}
