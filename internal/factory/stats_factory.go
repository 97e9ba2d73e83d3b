package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/adapters/stats"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/core"
)

// StatsFactory creates checkpoint recorders based on configuration
type StatsFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStatsFactory creates a new stats factory
func NewStatsFactory(cfg *config.Config, logger *zap.Logger) *StatsFactory {
	return &StatsFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRecorder creates a checkpoint recorder based on the configuration
func (f *StatsFactory) CreateRecorder() (core.StatsRecorder, error) {
	statsCfg := f.cfg.GetStats()
	if !statsCfg.Enabled {
		return stats.NewNoop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(statsCfg.SQLitePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create statistics directory: %w", err)
	}
	return stats.NewRecorder(statsCfg.SQLitePath, f.logger)
}
