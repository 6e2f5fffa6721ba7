package factory

import (
	"context"
	"fmt"

	"github.com/mikey/maccafe-matcher/internal/adapters/bedrock"
	"github.com/mikey/maccafe-matcher/internal/adapters/gemini"
	"github.com/mikey/maccafe-matcher/internal/adapters/openai"
	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"go.uber.org/zap"
)

// IntroFactory creates intro writers
type IntroFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewIntroFactory creates a new intro factory
func NewIntroFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *IntroFactory {
	return &IntroFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateIntroWriter creates the configured intro writer. It returns nil for
// provider "none", in which case notifications carry no intro.
func (f *IntroFactory) CreateIntroWriter(ctx context.Context) (core.IntroWriter, error) {
	introCfg, err := f.cfg.GetIntro()
	if err != nil {
		return nil, err
	}

	var writer core.IntroWriter
	switch introCfg.Provider {
	case "none":
		return nil, nil
	case "bedrock":
		writer, err = bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateIntroClient(ctx, introCfg.MaxLength)
	case "gemini":
		writer, err = gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateIntroClient(ctx, introCfg.MaxLength)
	case "openai":
		writer, err = openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateIntroClient(introCfg.MaxLength)
	default:
		return nil, fmt.Errorf("unsupported intro provider: %s", introCfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s intro writer: %w", introCfg.Provider, err)
	}

	f.logger.Info("Intro writer enabled", zap.String("provider", introCfg.Provider))
	return writer, nil
}
