// Package detective wires the classification pipeline: configuration,
// normalization, session building, baselining, classification and report
// assembly for one investigation run.
package detective

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netinvestigate/client-detective/pkg/session"
)

// Config holds the complete tool configuration.
type Config struct {
	// Timezone is the network's local timezone (IANA name). All window
	// boundary logic operates in this zone.
	Timezone string `yaml:"timezone"`

	// BaselineDays is the length of the baseline window in days.
	BaselineDays int `yaml:"baseline_days"`

	// AfterHoursStart and AfterHoursEnd bound the after-hours band ("HH:MM").
	AfterHoursStart string `yaml:"after_hours_start"`
	AfterHoursEnd   string `yaml:"after_hours_end"`

	// MergeGap is the session merge-gap threshold.
	MergeGap time.Duration `yaml:"merge_gap"`

	// LoiteringMin is the minimum elapsed presence for the loitering rule.
	LoiteringMin time.Duration `yaml:"loitering_min"`

	// EventTypes lists the source event types that count as connection
	// evidence.
	EventTypes []string `yaml:"event_types"`

	Meraki  MerakiConfig  `yaml:"meraki"`
	History HistoryConfig `yaml:"history"`
}

// MerakiConfig configures the vendor API data source.
type MerakiConfig struct {
	// APIKey is the dashboard API key. Usually provided via
	// ${MERAKI_DASHBOARD_API_KEY} expansion or prompted interactively.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the dashboard API base URL.
	BaseURL string `yaml:"base_url"`

	// OrgID and NetworkID preselect the organization and network,
	// skipping interactive selection.
	OrgID     string `yaml:"org_id"`
	NetworkID string `yaml:"network_id"`

	// PerPage is the event page size for paginated fetches.
	PerPage int `yaml:"per_page"`
}

// HistoryConfig configures run-history persistence.
type HistoryConfig struct {
	// Dir is the root directory for per-run output directories.
	Dir string `yaml:"dir"`
}

// envVarPattern matches ${VAR} references in config files.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig reads a YAML config file, expands ${ENV_VAR} references and
// applies defaults. The result is not yet validated; call Validate before
// processing.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.BaselineDays == 0 {
		cfg.BaselineDays = 7
	}
	if cfg.AfterHoursStart == "" {
		cfg.AfterHoursStart = "18:00"
	}
	if cfg.AfterHoursEnd == "" {
		cfg.AfterHoursEnd = "06:00"
	}
	if cfg.MergeGap == 0 {
		cfg.MergeGap = 30 * time.Minute
	}
	if cfg.LoiteringMin == 0 {
		cfg.LoiteringMin = 8 * time.Hour
	}
	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = []string{"association", "wpa_auth", "disassociation"}
	}
	if cfg.Meraki.BaseURL == "" {
		cfg.Meraki.BaseURL = "https://api.meraki.com/api/v1"
	}
	if cfg.Meraki.PerPage == 0 {
		cfg.Meraki.PerPage = 1000
	}
	if cfg.History.Dir == "" {
		cfg.History.Dir = "history"
	}
}

// Validate checks the configuration for boundary errors. Validation
// failures are fatal and surface before any processing begins.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.BaselineDays < 1 {
		return fmt.Errorf("baseline_days must be at least 1, got %d", c.BaselineDays)
	}
	if c.MergeGap <= 0 {
		return fmt.Errorf("merge_gap must be positive, got %s", c.MergeGap)
	}
	if c.LoiteringMin <= 0 {
		return fmt.Errorf("loitering_min must be positive, got %s", c.LoiteringMin)
	}
	if _, err := c.AfterHoursBand(); err != nil {
		return fmt.Errorf("invalid after-hours band: %w", err)
	}
	if c.Meraki.PerPage < 1 {
		return fmt.Errorf("meraki per_page must be positive, got %d", c.Meraki.PerPage)
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// AfterHoursBand parses the configured after-hours boundaries.
func (c *Config) AfterHoursBand() (session.Band, error) {
	return session.ParseBand(c.AfterHoursStart, c.AfterHoursEnd)
}

// BusinessHoursBand returns the complement of the after-hours band.
func (c *Config) BusinessHoursBand() (session.Band, error) {
	band, err := c.AfterHoursBand()
	if err != nil {
		return session.Band{}, err
	}
	return session.Band{Start: band.End, End: band.Start}, nil
}
