package factory

import (
	"fmt"

	"github.com/mikey/maccafe-matcher/internal/adapters/mail"
	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

// MailFactory creates notification senders based on configuration
type MailFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailFactory creates a new mail factory
func NewMailFactory(cfg *config.Config, logger *zap.Logger) *MailFactory {
	return &MailFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSender creates the configured notification transport
func (f *MailFactory) CreateSender() (core.NotificationSender, error) {
	mailCfg, err := f.cfg.GetMail()
	if err != nil {
		return nil, err
	}
	renderer := mail.NewRenderer(mailCfg.AvatarBaseURL)

	switch mailCfg.Transport {
	case "smtp":
		smtpCfg, err := f.cfg.GetSMTP()
		if err != nil {
			return nil, err
		}
		f.logger.Info("Using SMTP relay",
			zap.String("host", smtpCfg.Host),
			zap.Int("port", smtpCfg.Port),
			zap.String("tls_mode", smtpCfg.TLSMode))
		return mail.NewSMTPSender(smtpCfg, mailCfg.From, renderer, f.logger), nil
	case "log":
		f.logger.Warn("Notifications are logged, not sent")
		return mail.NewLogSender(renderer, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport: %s", mailCfg.Transport)
	}
}
