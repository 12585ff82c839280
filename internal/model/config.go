package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountType identifies the provider behind a mail account.
type AccountType string

const (
	AccountBackend AccountType = "backend"
	AccountIMAP    AccountType = "imap"
	AccountGmail   AccountType = "gmail"
)

// AccountConfig holds the configuration for a single mail account.
type AccountConfig struct {
	// ID is the unique identifier for this account. Credentials in the
	// keyring are keyed by it.
	ID string `mapstructure:"id" yaml:"id"`

	// Type is one of "backend", "imap" or "gmail".
	Type string `mapstructure:"type" yaml:"type"`

	// Name is the user-defined label for this account.
	Name string `mapstructure:"name" yaml:"name"`

	// BaseURL is the backend root URL or the IMAP host.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Config holds account-specific settings
	// (e.g., port, username, client secret path).
	Config map[string]string `mapstructure:"config" yaml:"config"`
}

// SyncMode selects what a background poll does after the first full fetch.
type SyncMode string

const (
	SyncModeDelta SyncMode = "delta"
	SyncModeFull  SyncMode = "full"
)

// SyncConfig controls the poll scheduler.
type SyncConfig struct {
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	Mode            string `mapstructure:"mode" yaml:"mode"`
	MaxResults      int    `mapstructure:"max_results" yaml:"max_results"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme    string `mapstructure:"theme" yaml:"theme"`
	JobsOnly bool   `mapstructure:"jobs_only" yaml:"jobs_only"`
}

// FilterConfig holds the job email classifier rules.
type FilterConfig struct {
	Keywords          []string `mapstructure:"keywords" yaml:"keywords"`
	Domains           []string `mapstructure:"domains" yaml:"domains"`
	Patterns          []string `mapstructure:"patterns" yaml:"patterns"`
	KeywordConfidence float64  `mapstructure:"keyword_confidence" yaml:"keyword_confidence"`
	DomainConfidence  float64  `mapstructure:"domain_confidence" yaml:"domain_confidence"`
	RegexConfidence   float64  `mapstructure:"regex_confidence" yaml:"regex_confidence"`
	MinConfidence     float64  `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Sync     SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Display  DisplayConfig   `mapstructure:"display" yaml:"display"`
	Filter   FilterConfig    `mapstructure:"filter" yaml:"filter"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
}

// ActiveAccount returns the first enabled account.
func (c *AppConfig) ActiveAccount() (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.Enabled {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// ConfigDir returns ~/.config/mailbox.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailbox")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailbox/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultFilterConfig returns the stock job email rules.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Keywords: []string{
			"applied", "application", "interview", "recruiter", "job", "career",
			"position", "hiring", "candidate", "resume", "cv", "employment",
			"opportunity", "role", "opening", "vacancy", "recruitment",
		},
		Domains: []string{
			"linkedin.com", "indeed.com", "jobvite.com", "workday.com",
			"greenhouse.io", "lever.co", "bamboohr.com", "smartrecruiters.com",
			"icims.com", "jobscore.com", "recruiterbox.com", "hired.com",
			"angel.co", "stackoverflow.com", "dice.com", "monster.com",
			"ziprecruiter.com", "glassdoor.com", "simplyhired.com",
		},
		Patterns: []string{
			`\b(?:applied|application|interview|recruiter|job|career)\b`,
			`\b(?:position|hiring|candidate|resume|cv|employment)\b`,
			`\b(?:opportunity|role|opening|vacancy|recruitment)\b`,
		},
		KeywordConfidence: 0.8,
		DomainConfidence:  0.9,
		RegexConfidence:   0.85,
		MinConfidence:     0.8,
	}
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Accounts: []AccountConfig{},
		Sync: SyncConfig{
			PollIntervalSec: 30,
			Mode:            string(SyncModeDelta),
			MaxResults:      50,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Filter: DefaultFilterConfig(),
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "mailbox.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := DefaultAppConfig()
	v.SetDefault("sync.poll_interval_sec", def.Sync.PollIntervalSec)
	v.SetDefault("sync.mode", def.Sync.Mode)
	v.SetDefault("sync.max_results", def.Sync.MaxResults)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = def.Sync.PollIntervalSec
	}
	if cfg.Sync.Mode != string(SyncModeFull) {
		cfg.Sync.Mode = string(SyncModeDelta)
	}
	if cfg.Filter.MinConfidence == 0 {
		cfg.Filter.MinConfidence = def.Filter.MinConfidence
	}

	for i := range cfg.Accounts {
		if !cfg.Accounts[i].Enabled {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("accounts.%d.enabled", i)
			if !v.IsSet(key) {
				cfg.Accounts[i].Enabled = true
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("filter", cfg.Filter)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
