package di

import (
	"math/rand"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/adapters/delivery"
	"github.com/mailsift/mailsift/internal/adapters/queue"
	"github.com/mailsift/mailsift/internal/adapters/ratelimit"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/core"
	"github.com/mailsift/mailsift/internal/factory"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/mailparse"
	"github.com/mailsift/mailsift/internal/pipeline"
	"github.com/mailsift/mailsift/internal/relay"
	"github.com/mailsift/mailsift/internal/rules"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewCorpusFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAnalyzerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStatsFactory); err != nil {
		return nil, err
	}

	// Register fingerprint comparison
	if err := container.Provide(func() core.CompareFunc {
		return mailparse.Score
	}); err != nil {
		return nil, err
	}

	// Register corpus store
	if err := container.Provide(func(f *factory.CorpusFactory, compare core.CompareFunc) (core.Corpus, error) {
		return f.CreateCorpus(compare)
	}); err != nil {
		return nil, err
	}

	// Register text analyzer
	if err := container.Provide(func(f *factory.AnalyzerFactory) (core.TextAnalyzer, error) {
		return f.CreateAnalyzer()
	}); err != nil {
		return nil, err
	}

	// Register checkpoint recorder
	if err := container.Provide(func(f *factory.StatsFactory) (core.StatsRecorder, error) {
		return f.CreateRecorder()
	}); err != nil {
		return nil, err
	}

	// Register rule file
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) ([]core.RuleMatcher, error) {
		rulesCfg := cfg.GetRules()
		if !rulesCfg.UseRuleFile {
			return nil, nil
		}
		matchers, err := rules.Load(rulesCfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("rule file loaded",
			zap.String("path", rulesCfg.Path), zap.Int("rules", len(matchers)))
		return matchers, nil
	}); err != nil {
		return nil, err
	}

	// Register scoring engine
	if err := container.Provide(func(
		cfg *config.Config,
		corpus core.Corpus,
		analyzer core.TextAnalyzer,
		stats core.StatsRecorder,
		compare core.CompareFunc,
		matchers []core.RuleMatcher,
		logger *zap.Logger,
	) *core.Engine {
		analysisCfg := cfg.GetAnalysis()
		opts := core.EngineOptions{
			HoneypotAddr:    cfg.GetReceiver().ListenHost,
			AnalyzeText:     analysisCfg.Enabled,
			AnalysisTimeout: analysisCfg.Timeout,
			Rules:           matchers,
		}
		return core.NewEngine(corpus, analyzer, stats, compare, opts, logger)
	}); err != nil {
		return nil, err
	}

	// Register classification resolver
	if err := container.Provide(core.NewResolver); err != nil {
		return nil, err
	}

	// Register relay counter
	if err := container.Provide(func(cfg *config.Config) core.RelayCounter {
		return ratelimit.New(int64(cfg.GetRelay().GlobalCounter))
	}); err != nil {
		return nil, err
	}

	// Register relay gatekeeper
	if err := container.Provide(func(
		cfg *config.Config,
		counter core.RelayCounter,
		stats core.StatsRecorder,
		logger *zap.Logger,
	) *relay.Gatekeeper {
		relayCfg := cfg.GetRelay()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		return relay.New(relay.Config{
			Enabled:           relayCfg.Enabled,
			DestroyAttachment: relayCfg.DestroyAttachment,
			DestroyLink:       relayCfg.DestroyLink,
			DestroyReplyTo:    relayCfg.DestroyReplyTo,
		}, counter, stats, rng, logger)
	}); err != nil {
		return nil, err
	}

	// Register normalizer
	if err := container.Provide(mailparse.New); err != nil {
		return nil, err
	}

	// Register delivery client
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Delivery {
		return delivery.NewSMTP(cfg.GetRelay().UpstreamAddr, logger)
	}); err != nil {
		return nil, err
	}

	// Register undeliverable store
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.UndeliverableStore, error) {
		return delivery.NewDirStore(cfg.GetQueue().UndeliverablePath, logger)
	}); err != nil {
		return nil, err
	}

	// Register pipeline
	if err := container.Provide(pipeline.New); err != nil {
		return nil, err
	}

	// Register queue watcher
	if err := container.Provide(func(cfg *config.Config, p *pipeline.Pipeline, logger *zap.Logger) (*queue.Watcher, error) {
		queueCfg := cfg.GetQueue()
		return queue.New(queue.Config{
			Path:    queueCfg.Path,
			SaveRaw: queueCfg.SaveEML,
			RawPath: queueCfg.RawSpamPath,
		}, p.Process, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
