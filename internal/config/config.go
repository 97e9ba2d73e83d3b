package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mailsift/")
	v.AddConfigPath("$HOME/.mailsift")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAILSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Receiver defaults
	v.SetDefault("receiver.listen_host", "")

	// Queue defaults
	v.SetDefault("queue.path", "/var/spool/mailsift/new")
	v.SetDefault("queue.save_eml", false)
	v.SetDefault("queue.rawspam_path", "/var/spool/mailsift/rawspam")
	v.SetDefault("queue.undeliverable_path", "/var/spool/mailsift/undeliverable")

	// Relay defaults
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.upstream_addr", "127.0.0.1:10026")
	v.SetDefault("relay.globalcounter", 50)
	v.SetDefault("relay.counter_reset_interval", "1h")
	v.SetDefault("relay.destroy_attachment", true)
	v.SetDefault("relay.destroy_link", true)
	v.SetDefault("relay.destroy_reply_to", true)

	// Corpus defaults
	v.SetDefault("corpus.type", "sqlite")
	v.SetDefault("corpus.sqlite_path", "/data/mailsift.db")
	v.SetDefault("corpus.mysql.host", "localhost")
	v.SetDefault("corpus.mysql.port", 3306)
	v.SetDefault("corpus.mysql.user", "mailsift")
	v.SetDefault("corpus.mysql.password", "")
	v.SetDefault("corpus.mysql.database", "mailsift")

	// Analysis defaults
	v.SetDefault("analysis.enabled", false)
	v.SetDefault("analysis.provider", "local")
	v.SetDefault("analysis.timeout", "10s")

	// Rule-file defaults
	v.SetDefault("rules.use_rule_file", false)
	v.SetDefault("rules.path", "/etc/mailsift/rules.json")

	// Statistics defaults
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.sqlite_path", "/data/mailsift_stats.db")
	v.SetDefault("stats.metrics_listen_addr", "")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetFloat64 gets a float value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// UnmarshalKey decodes one configuration section into a struct
func (c *Config) UnmarshalKey(key string, rawVal interface{}) error {
	return c.v.UnmarshalKey(key, rawVal)
}
