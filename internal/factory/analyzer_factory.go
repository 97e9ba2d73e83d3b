package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openaiapi "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/adapters/analyzer"
	"github.com/mailsift/mailsift/internal/adapters/bedrock"
	"github.com/mailsift/mailsift/internal/adapters/gemini"
	"github.com/mailsift/mailsift/internal/adapters/openai"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/core"
)

// AnalyzerFactory creates text analyzers based on configuration
type AnalyzerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAnalyzerFactory creates a new analyzer factory
func NewAnalyzerFactory(cfg *config.Config, logger *zap.Logger) *AnalyzerFactory {
	return &AnalyzerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAnalyzer creates a text analyzer based on the configuration
func (f *AnalyzerFactory) CreateAnalyzer() (core.TextAnalyzer, error) {
	analysisCfg := f.cfg.GetAnalysis()
	if !analysisCfg.Enabled {
		return analyzer.NewNoop(), nil
	}

	switch analysisCfg.Provider {
	case "local":
		return analyzer.NewProse(f.logger), nil
	case "openai":
		openaiCfg := f.cfg.GetOpenAI()
		client := openaiapi.NewClient(openaiCfg.APIKey)
		return openai.NewAnalyzer(
			client,
			openaiCfg.ModelName,
			openaiCfg.MaxTokens,
			openaiCfg.Temperature,
			openaiCfg.TopP,
			openaiCfg.MaxBodySize,
			f.logger,
		), nil
	case "gemini":
		geminiCfg := f.cfg.GetGemini()
		return gemini.NewAnalyzer(
			geminiCfg.APIKey,
			geminiCfg.ModelName,
			geminiCfg.MaxTokens,
			geminiCfg.Temperature,
			geminiCfg.TopP,
			geminiCfg.MaxBodySize,
			f.logger,
		)
	case "bedrock":
		bedrockCfg := f.cfg.GetBedrock()
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(bedrockCfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		return bedrock.NewAnalyzer(
			client,
			bedrockCfg.ModelID,
			bedrockCfg.MaxTokens,
			bedrockCfg.Temperature,
			bedrockCfg.TopP,
			bedrockCfg.MaxBodySize,
			f.logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", analysisCfg.Provider)
	}
}
