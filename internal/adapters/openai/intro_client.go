package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/maccafe-matcher/internal/adapters/intro"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// IntroClient writes match intros with the OpenAI chat completion API
type IntroClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxLength     int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewIntroClient creates a new OpenAI intro writer
func NewIntroClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *IntroClient {
	return &IntroClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxLength:     maxLength,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// WriteIntro asks the model for an intro of match addressed to recipient
func (c *IntroClient) WriteIntro(ctx context.Context, recipient core.Profile, match core.Profile) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intro.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: intro.BuildPrompt(recipient, match, c.maxLength)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from OpenAI")
	}

	text, err := intro.ParseReply(resp.Choices[0].Message.Content, c.textProcessor, c.maxLength)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Intro written",
		zap.String("model", c.modelName),
		zap.String("completion_id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return text, nil
}
