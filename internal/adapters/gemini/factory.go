package gemini

import (
	"context"
	"errors"

	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"go.uber.org/zap"
)

// Factory creates new instances of IntroClient
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for IntroClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateIntroClient creates a new IntroClient
func (f *Factory) CreateIntroClient(ctx context.Context, maxLength int) (*IntroClient, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, errors.New("gemini.api_key is required for the gemini intro provider")
	}

	return NewIntroClient(
		ctx,
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		maxLength,
		f.logger,
		f.textProcessor,
	)
}
