package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/adapters/corpus"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/core"
)

// CorpusFactory creates corpus stores based on configuration
type CorpusFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCorpusFactory creates a new corpus factory
func NewCorpusFactory(cfg *config.Config, logger *zap.Logger) *CorpusFactory {
	return &CorpusFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCorpus creates a corpus store based on the configuration
func (f *CorpusFactory) CreateCorpus(compare core.CompareFunc) (core.Corpus, error) {
	corpusCfg := f.cfg.GetCorpus()

	switch corpusCfg.Type {
	case "memory":
		return corpus.NewMemoryStore(compare, f.logger), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(corpusCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return corpus.NewSQLiteStore(corpusCfg.SQLitePath, compare, f.logger)
	case "mysql":
		return corpus.NewMySQLStore(corpus.MySQLConfig{
			Host:     corpusCfg.MySQL.Host,
			Port:     corpusCfg.MySQL.Port,
			User:     corpusCfg.MySQL.User,
			Password: corpusCfg.MySQL.Password,
			Database: corpusCfg.MySQL.Database,
		}, compare, f.logger)
	default:
		return nil, fmt.Errorf("unsupported corpus type: %s", corpusCfg.Type)
	}
}
