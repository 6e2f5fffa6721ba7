package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/maccafe-matcher/internal/adapters/store"
	"github.com/mikey/maccafe-matcher/internal/adapters/trigger"
	"github.com/mikey/maccafe-matcher/internal/allowlist"
	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/factory"
	"github.com/mikey/maccafe-matcher/internal/logging"
	"github.com/mikey/maccafe-matcher/internal/metrics"
	"github.com/mikey/maccafe-matcher/internal/ports"
	"github.com/mikey/maccafe-matcher/internal/utils"
)

// Options carries command line overrides into the container
type Options struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool
}

// BuildContainer creates and configures a dependency injection container
func BuildContainer(opts Options) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		if opts.Verbose {
			cfg.Set("logging.level", "debug")
		}
		if opts.JSONLog {
			cfg.Set("logging.format", "json")
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewIntroFactory); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		return f.CreateStore(context.Background())
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s store.Store) core.Repository {
		return s
	}); err != nil {
		return nil, err
	}

	// Register notification sender
	if err := container.Provide(func(f *factory.MailFactory) (core.NotificationSender, error) {
		return f.CreateSender()
	}); err != nil {
		return nil, err
	}

	// Register intro writer, nil when disabled
	if err := container.Provide(func(f *factory.IntroFactory) (core.IntroWriter, error) {
		return f.CreateIntroWriter(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register address policy
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.AddressPolicy, error) {
		mailCfg, err := cfg.GetMail()
		if err != nil {
			return nil, err
		}
		return allowlist.NewPolicy(mailCfg.AllowedDomains, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.NewRunObserver); err != nil {
		return nil, err
	}

	// Register matching service
	if err := container.Provide(newMatchingService); err != nil {
		return nil, err
	}

	// Register trigger
	if err := container.Provide(func(
		cfg *config.Config,
		service *core.MatchingService,
		observer *metrics.RunObserver,
		logger *zap.Logger,
	) (ports.Trigger, error) {
		serverCfg, err := cfg.GetServer()
		if err != nil {
			return nil, err
		}
		matchingCfg, err := cfg.GetMatching()
		if err != nil {
			return nil, err
		}
		return trigger.NewHTTPTrigger(serverCfg, service, matchingCfg.HistoryLimit, observer.Handler(), logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

func newMatchingService(
	cfg *config.Config,
	repo core.Repository,
	sender core.NotificationSender,
	intros core.IntroWriter,
	policy core.AddressPolicy,
	observer *metrics.RunObserver,
	logger *zap.Logger,
) (*core.MatchingService, error) {
	matchingCfg, err := cfg.GetMatching()
	if err != nil {
		return nil, err
	}
	introCfg, err := cfg.GetIntro()
	if err != nil {
		return nil, err
	}

	settings := core.Settings{
		Cooldown:          matchingCfg.Cooldown,
		LeaseTTL:          matchingCfg.LeaseTTL,
		ExclusiveRuns:     matchingCfg.ExclusiveRuns,
		NotifyConcurrency: matchingCfg.NotifyConcurrency,
		SendTimeout:       matchingCfg.SendTimeout,
		IntroTimeout:      introCfg.Timeout,
	}

	logger.Info("Matching service configured",
		zap.Duration("cooldown", settings.Cooldown),
		zap.Bool("exclusive_runs", settings.ExclusiveRuns),
		zap.Int("notify_concurrency", settings.NotifyConcurrency),
		zap.Bool("intros", intros != nil))

	return core.NewMatchingService(repo, sender, intros, policy, observer, logger, settings), nil
}
