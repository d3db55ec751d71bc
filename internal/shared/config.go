package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Campaigns   []CampaignConfig  `toml:"campaigns"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Synapse   SynapseConfig   `toml:"synapse"`
	MailChimp MailChimpConfig `toml:"mailchimp"`
}

// SynapseConfig contains Synapse REST API settings.
type SynapseConfig struct {
	BaseURL     string `toml:"base_url"`
	AccessToken string `toml:"access_token" env:"SYNAPSE_ACCESS_TOKEN"`
}

// MailChimpConfig contains MailChimp API credentials.
type MailChimpConfig struct {
	APIKey  string `toml:"api_key" env:"MAILCHIMP_API_KEY"`
	BaseURL string `toml:"base_url" env:"MAILCHIMP_BASE_URL"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig controls reconciliation behavior shared by every campaign.
type SyncConfig struct {
	PageSize               int     `toml:"page_size"`
	AggregateListID        string  `toml:"aggregate_list_id"`
	UpdateExisting         bool    `toml:"update_existing"`
	RequestsPerSecond      float64 `toml:"requests_per_second"`
	AbortOnCampaignFailure bool    `toml:"abort_on_campaign_failure"`
}

// CampaignConfig is one row of the campaign → roster group / mailing list table.
type CampaignConfig struct {
	ID                string   `toml:"id"`
	ApprovedGroupIDs  []string `toml:"approved_group_ids"`
	RegisteredGroupID string   `toml:"registered_group_id"`
	ApprovedListID    string   `toml:"approved_list_id"`
	UnapprovedListID  string   `toml:"unapproved_list_id"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values not present in the file keep the embedded defaults, and credentials
// set in the environment take precedence over the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Campaigns = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides credentials with values from the environment.
func ApplyEnv(config *Config) error {
	if err := env.Parse(&config.Credentials); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks settings that every campaign depends on.
//
// Per-campaign mapping problems are reported by the campaign itself so that one
// bad row does not block its siblings.
func (c *Config) Validate() error {
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("%w: sync.page_size must be positive", ErrInvalidConfig)
	}
	if c.Sync.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: sync.requests_per_second cannot be negative", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Campaigns))
	for _, campaign := range c.Campaigns {
		if campaign.ID == "" {
			return fmt.Errorf("%w: campaign without id", ErrInvalidConfig)
		}
		if seen[campaign.ID] {
			return fmt.Errorf("%w: duplicate campaign id %q", ErrInvalidConfig, campaign.ID)
		}
		seen[campaign.ID] = true
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
