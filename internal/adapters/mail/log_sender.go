package mail

import (
	"context"

	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

// LogSender renders notifications and logs them instead of sending
type LogSender struct {
	renderer *Renderer
	logger   *zap.Logger
}

// NewLogSender creates a sender for dry runs
func NewLogSender(renderer *Renderer, logger *zap.Logger) *LogSender {
	return &LogSender{renderer: renderer, logger: logger}
}

// Send renders the notification and writes it to the log
func (s *LogSender) Send(_ context.Context, n *core.Notification) error {
	content, err := s.renderer.Render(n)
	if err != nil {
		return err
	}

	s.logger.Info("Notification (not sent)",
		zap.String("run_id", n.RunID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("to", n.RecipientAddress),
		zap.String("subject", content.Subject),
		zap.String("match_id", n.Match.ProfileID),
		zap.Bool("has_intro", n.Intro != ""))
	s.logger.Debug("Notification body", zap.String("text", content.Text))
	return nil
}
