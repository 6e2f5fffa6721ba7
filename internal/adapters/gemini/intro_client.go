package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/maccafe-matcher/internal/adapters/intro"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// contentGenerator is the part of *genai.GenerativeModel the client uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// IntroClient writes match intros with Google Gemini
type IntroClient struct {
	client        *genai.Client
	model         contentGenerator
	modelName     string
	maxLength     int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewIntroClient creates a new Gemini intro writer
func NewIntroClient(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*IntroClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(intro.SystemPrompt)}}

	return &IntroClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxLength:     maxLength,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// WriteIntro asks the model for an intro of match addressed to recipient
func (c *IntroClient) WriteIntro(ctx context.Context, recipient core.Profile, match core.Profile) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(intro.BuildPrompt(recipient, match, c.maxLength)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from Gemini")
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			reply.WriteString(string(text))
		}
	}

	text, err := intro.ParseReply(reply.String(), c.textProcessor, c.maxLength)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Intro written", zap.String("model", c.modelName))
	return text, nil
}

// Close releases the underlying client
func (c *IntroClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
