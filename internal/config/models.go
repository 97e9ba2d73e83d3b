package config

import "time"

// ReceiverConfig represents the inbound transport settings the scoring
// checks care about
type ReceiverConfig struct {
	// ListenHost is the honeypot's public address; messages mentioning it
	// are almost certainly probes
	ListenHost string
}

// QueueConfig represents the spool-directory settings
type QueueConfig struct {
	Path              string
	SaveEML           bool
	RawSpamPath       string
	UndeliverablePath string
}

// RelayConfig represents the outbound relay settings
type RelayConfig struct {
	Enabled              bool
	UpstreamAddr         string
	GlobalCounter        int
	CounterResetInterval time.Duration
	DestroyAttachment    bool
	DestroyLink          bool
	DestroyReplyTo       bool
}

// CorpusConfig represents the corpus storage settings
type CorpusConfig struct {
	Type       string
	SQLitePath string
	MySQL      MySQLConfig
}

// MySQLConfig represents the MySQL connection settings
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// AnalysisConfig represents the semantic-analysis settings
type AnalysisConfig struct {
	Enabled  bool
	Provider string
	Timeout  time.Duration
}

// RulesConfig represents the rule-file settings
type RulesConfig struct {
	UseRuleFile bool
	Path        string
}

// StatsConfig represents the statistics settings
type StatsConfig struct {
	Enabled    bool
	SQLitePath string
	// MetricsListenAddr exposes Prometheus metrics when non-empty
	MetricsListenAddr string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// Credential is one username/password pair seeded into the corpus
type Credential struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GetReceiver returns the receiver configuration
func (c *Config) GetReceiver() ReceiverConfig {
	return ReceiverConfig{
		ListenHost: c.GetString("receiver.listen_host"),
	}
}

// GetQueue returns the queue configuration
func (c *Config) GetQueue() QueueConfig {
	return QueueConfig{
		Path:              c.GetString("queue.path"),
		SaveEML:           c.GetBool("queue.save_eml"),
		RawSpamPath:       c.GetString("queue.rawspam_path"),
		UndeliverablePath: c.GetString("queue.undeliverable_path"),
	}
}

// GetRelay returns the relay configuration
func (c *Config) GetRelay() RelayConfig {
	return RelayConfig{
		Enabled:              c.GetBool("relay.enabled"),
		UpstreamAddr:         c.GetString("relay.upstream_addr"),
		GlobalCounter:        c.GetInt("relay.globalcounter"),
		CounterResetInterval: c.GetDuration("relay.counter_reset_interval"),
		DestroyAttachment:    c.GetBool("relay.destroy_attachment"),
		DestroyLink:          c.GetBool("relay.destroy_link"),
		DestroyReplyTo:       c.GetBool("relay.destroy_reply_to"),
	}
}

// GetCorpus returns the corpus configuration
func (c *Config) GetCorpus() CorpusConfig {
	return CorpusConfig{
		Type:       c.GetString("corpus.type"),
		SQLitePath: c.GetString("corpus.sqlite_path"),
		MySQL: MySQLConfig{
			Host:     c.GetString("corpus.mysql.host"),
			Port:     c.GetInt("corpus.mysql.port"),
			User:     c.GetString("corpus.mysql.user"),
			Password: c.GetString("corpus.mysql.password"),
			Database: c.GetString("corpus.mysql.database"),
		},
	}
}

// GetAnalysis returns the analysis configuration
func (c *Config) GetAnalysis() AnalysisConfig {
	return AnalysisConfig{
		Enabled:  c.GetBool("analysis.enabled"),
		Provider: c.GetString("analysis.provider"),
		Timeout:  c.GetDuration("analysis.timeout"),
	}
}

// GetRules returns the rule-file configuration
func (c *Config) GetRules() RulesConfig {
	return RulesConfig{
		UseRuleFile: c.GetBool("rules.use_rule_file"),
		Path:        c.GetString("rules.path"),
	}
}

// GetStats returns the statistics configuration
func (c *Config) GetStats() StatsConfig {
	return StatsConfig{
		Enabled:           c.GetBool("stats.enabled"),
		SQLitePath:        c.GetString("stats.sqlite_path"),
		MetricsListenAddr: c.GetString("stats.metrics_listen_addr"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetCredentials returns the seeded credential list
func (c *Config) GetCredentials() ([]Credential, error) {
	var creds []Credential
	if err := c.UnmarshalKey("credentials", &creds); err != nil {
		return nil, err
	}
	return creds, nil
}
