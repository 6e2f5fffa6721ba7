package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/adapters/intro"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"go.uber.org/zap"
)

// InvokeModelAPI is the part of *bedrockruntime.Client the intro client uses
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// IntroClient writes match intros with a model hosted on Amazon Bedrock
type IntroClient struct {
	client        InvokeModelAPI
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxLength     int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewIntroClient creates a new Bedrock intro writer
func NewIntroClient(
	client InvokeModelAPI,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxLength int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *IntroClient {
	return &IntroClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxLength:     maxLength,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float32            `json:"temperature"`
	TopP             float32            `json:"top_p"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type titanRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig struct {
		MaxTokenCount int     `json:"maxTokenCount"`
		Temperature   float32 `json:"temperature"`
		TopP          float32 `json:"topP"`
	} `json:"textGenerationConfig"`
}

type titanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

type genericRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
}

type genericResponse struct {
	Generation string `json:"generation"`
	Outputs    []struct {
		Text string `json:"text"`
	} `json:"outputs"`
}

// WriteIntro asks the model for an intro of match addressed to recipient
func (c *IntroClient) WriteIntro(ctx context.Context, recipient core.Profile, match core.Profile) (string, error) {
	prompt := intro.BuildPrompt(recipient, match, c.maxLength)

	payload, err := c.requestBody(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	raw, err := c.responseText(resp.Body)
	if err != nil {
		return "", err
	}

	text, err := intro.ParseReply(raw, c.textProcessor, c.maxLength)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Intro written", zap.String("model", c.modelID))
	return text, nil
}

func (c *IntroClient) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(anthropicRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        c.maxTokens,
			System:           intro.SystemPrompt,
			Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
			Temperature:      c.temperature,
			TopP:             c.topP,
		})
	case c.isAmazonTitanModel():
		req := titanRequest{InputText: intro.SystemPrompt + "\n\n" + prompt}
		req.TextGenerationConfig.MaxTokenCount = c.maxTokens
		req.TextGenerationConfig.Temperature = c.temperature
		req.TextGenerationConfig.TopP = c.topP
		return json.Marshal(req)
	default:
		return json.Marshal(genericRequest{
			Prompt:      intro.SystemPrompt + "\n\n" + prompt,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			TopP:        c.topP,
		})
	}
}

func (c *IntroClient) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var out strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				out.WriteString(block.Text)
			}
		}
		return out.String(), nil
	case c.isAmazonTitanModel():
		var resp titanResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp genericResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal model response: %w", err)
		}
		if resp.Generation != "" {
			return resp.Generation, nil
		}
		if len(resp.Outputs) > 0 {
			return resp.Outputs[0].Text, nil
		}
		return "", errors.New("empty response from model")
	}
}

func (c *IntroClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.")
}

func (c *IntroClient) isAmazonTitanModel() bool {
	return strings.Contains(c.modelID, "amazon.titan")
}
