package detective

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 7, cfg.BaselineDays)
	assert.Equal(t, "18:00", cfg.AfterHoursStart)
	assert.Equal(t, "06:00", cfg.AfterHoursEnd)
	assert.Equal(t, 30*time.Minute, cfg.MergeGap)
	assert.Equal(t, 8*time.Hour, cfg.LoiteringMin)
	assert.Equal(t, []string{"association", "wpa_auth", "disassociation"}, cfg.EventTypes)
	assert.Equal(t, 1000, cfg.Meraki.PerPage)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
timezone: Europe/London
baseline_days: 14
merge_gap: 15m
meraki:
  network_id: N_123
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.Equal(t, 14, cfg.BaselineDays)
	assert.Equal(t, 15*time.Minute, cfg.MergeGap)
	assert.Equal(t, "N_123", cfg.Meraki.NetworkID)
	assert.Equal(t, "18:00", cfg.AfterHoursStart, "unset fields take defaults")
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_MERAKI_KEY", "secret-key")
	path := writeConfig(t, `
meraki:
  api_key: ${TEST_MERAKI_KEY}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Meraki.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"negative baseline", func(c *Config) { c.BaselineDays = -1 }},
		{"zero gap", func(c *Config) { c.MergeGap = -time.Minute }},
		{"bad band", func(c *Config) { c.AfterHoursStart = "25:99" }},
		{"zero per page", func(c *Config) { c.Meraki.PerPage = -5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBusinessHoursBand_IsComplement(t *testing.T) {
	cfg := DefaultConfig()

	business, err := cfg.BusinessHoursBand()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, business.Start)
	assert.Equal(t, 18*time.Hour, business.End)
	assert.False(t, business.Wraps())
}
