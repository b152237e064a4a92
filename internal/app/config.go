package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/trainerbot/core/config"
	coredatabase "github.com/m3rciful/trainerbot/core/database"
	"github.com/m3rciful/trainerbot/internal/store"
)

// TranslatorConfig enables machine hints. Hints are off while Key is empty.
type TranslatorConfig struct {
	Key       string `yaml:"key" envconfig:"TRANSLATOR_KEY"`
	IssuerURL string `yaml:"issuer_url" envconfig:"TRANSLATOR_ISSUER_URL"`
	Endpoint  string `yaml:"endpoint" envconfig:"TRANSLATOR_ENDPOINT"`
}

// Enabled reports whether a subscription key is configured.
func (t TranslatorConfig) Enabled() bool { return t.Key != "" }

// TrainerConfig holds settings of the trainer handlers.
type TrainerConfig struct {
	// Languages are offered in the pickers in this order.
	Languages []store.Language `yaml:"languages" ignored:"true"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database   coredatabase.Config `yaml:"database"`
	Translator TranslatorConfig    `yaml:"translator"`
	Trainer    TrainerConfig       `yaml:"trainer"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path, overlays environment variables and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and resolves keyring secrets.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	pw, err := coreconfig.ResolveSecret(c.Database.Password)
	if err != nil {
		return fmt.Errorf("database.password: %w", err)
	}
	c.Database.Password = pw
	if err := c.Database.Normalize(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	key, err := coreconfig.ResolveSecret(c.Translator.Key)
	if err != nil {
		return fmt.Errorf("translator.key: %w", err)
	}
	c.Translator.Key = strings.TrimSpace(key)

	seen := make(map[string]bool, len(c.Trainer.Languages))
	for i, l := range c.Trainer.Languages {
		l.Code = strings.TrimSpace(l.Code)
		l.Name = strings.TrimSpace(l.Name)
		if l.Code == "" || l.Name == "" {
			return fmt.Errorf("trainer.languages[%d]: code and name are required", i)
		}
		if strings.Contains(l.Code, "|") {
			return fmt.Errorf("trainer.languages[%d]: code %q must not contain '|'", i, l.Code)
		}
		if seen[l.Code] {
			return fmt.Errorf("trainer.languages[%d]: duplicate code %q", i, l.Code)
		}
		seen[l.Code] = true
		c.Trainer.Languages[i] = l
	}
	if len(c.Trainer.Languages) == 0 {
		c.Trainer.Languages = append([]store.Language(nil), store.DefaultLanguages...)
	}
	return nil
}
