package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/promptline/promptline/llm"
)

// Config carries everything the CLI needs to assemble an engine: where
// chain and template files live, how to construct the provider, and the
// batch runner's worker count.
type Config struct {
	ChainsDir  string `mapstructure:"chains_dir"`
	PromptsDir string `mapstructure:"prompts_dir"`

	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`

	TellmURL string `mapstructure:"tellm_url"`
	BatchID  string `mapstructure:"batch_id"`
	Debug    bool   `mapstructure:"debug"`

	Workers int `mapstructure:"workers"`
}

// Default returns a Config with the conventional directory layout. The
// API key stays empty here; each provider falls back to its own
// environment variable.
func Default() *Config {
	return &Config{
		ChainsDir:  "chains",
		PromptsDir: "prompts",
		Provider:   llm.ProviderAnthropic,
		MaxRetries: 2,
		Workers:    4,
		TellmURL:   os.Getenv("TELLM_URL"),
	}
}

// Load reads a config file and overlays it on Default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LLM maps the file-level settings onto provider construction
// parameters.
func (c *Config) LLM() *llm.Config {
	return &llm.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		MaxRetries:  c.MaxRetries,
		Debug:       c.Debug,
		BatchID:     c.BatchID,
		TellmURL:    c.TellmURL,
	}
}
