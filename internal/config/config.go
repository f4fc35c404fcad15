// Package config loads, defaults, and validates the reporter's YAML
// configuration. Validation distinguishes fatal errors (the service
// refuses to start) from warnings (logged, then ignored).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
)

// Defaults and bounds.
const (
	DefaultControllerPort    = 443
	DefaultPushBufferSize    = 10000
	MinPushBufferSize        = 100
	MaxPushBufferSize        = 100000
	DefaultShellTimeoutSecs  = 30
	MinShellTimeoutSecs      = 5
	MaxShellTimeoutSecs      = 300
	DefaultLookbackHours     = 24
	DefaultMinEntries        = 10
	DefaultRetentionDays     = 30
	DefaultSMTPPort          = 587
	DefaultMonitoringAddress = ":9090"
)

// SchedulePresets maps friendly preset names to cron expressions.
var SchedulePresets = map[string]string{
	"hourly": "0 * * * *",
	"daily":  "0 8 * * *",
	"weekly": "0 8 * * 1",
}

type Config struct {
	Connection   ConnectionConfig   `yaml:"connection"`
	Scheduling   SchedulingConfig   `yaml:"scheduling"`
	Push         PushConfig         `yaml:"push"`
	Shell        ShellConfig        `yaml:"shell"`
	Lookback     LookbackConfig     `yaml:"lookback"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	StateDir     string             `yaml:"state_dir"`
	Env          string             `yaml:"env"`
	LogLevel     string             `yaml:"log_level"`
}

type ConnectionConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Site      string `yaml:"site"`
	VerifyTLS bool   `yaml:"verify_tls"`
}

type SchedulingConfig struct {
	// Preset and Cron are mutually exclusive; both absent means one
	// run and exit.
	Preset   string `yaml:"preset"`
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type PushConfig struct {
	Enabled    *bool `yaml:"enabled"`
	BufferSize int   `yaml:"buffer_size"`
}

type ShellConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

type LookbackConfig struct {
	InitialLookbackHours    int `yaml:"initial_lookback_hours"`
	MinEntriesForSufficient int `yaml:"min_entries_for_sufficient"`
}

type DeliveryConfig struct {
	Email EmailConfig `yaml:"email"`
	File  FileConfig  `yaml:"file"`
}

type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	SMTPHost   string   `yaml:"smtp_host"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
	TLS        bool     `yaml:"tls"`
}

type FileConfig struct {
	Enabled       bool   `yaml:"enabled"`
	OutputDir     string `yaml:"output_dir"`
	Format        string `yaml:"format"` // html | text | both
	RetentionDays int    `yaml:"retention_days"`
}

type IntegrationsConfig struct {
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
}

type CloudflareConfig struct {
	APIToken string `yaml:"api_token"`
	ZoneID   string `yaml:"zone_id"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads the YAML file, resolves secrets, and applies defaults.
// Validation is a separate step so the caller can log warnings.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.resolveSecrets()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Connection.Port == 0 {
		c.Connection.Port = DefaultControllerPort
	}
	if c.Connection.Site == "" {
		c.Connection.Site = "default"
	}
	if c.Push.Enabled == nil {
		c.Push.Enabled = boolPtr(true)
	}
	if c.Push.BufferSize == 0 {
		c.Push.BufferSize = DefaultPushBufferSize
	}
	if c.Shell.Enabled == nil {
		c.Shell.Enabled = boolPtr(true)
	}
	if c.Shell.Username == "" {
		c.Shell.Username = c.Connection.Username
	}
	if c.Shell.Password == "" {
		c.Shell.Password = c.Connection.Password
	}
	if c.Shell.TimeoutSecs == 0 {
		c.Shell.TimeoutSecs = DefaultShellTimeoutSecs
	}
	if c.Lookback.InitialLookbackHours == 0 {
		c.Lookback.InitialLookbackHours = DefaultLookbackHours
	}
	if c.Lookback.MinEntriesForSufficient == 0 {
		c.Lookback.MinEntriesForSufficient = DefaultMinEntries
	}
	if c.Delivery.Email.SMTPPort == 0 {
		c.Delivery.Email.SMTPPort = DefaultSMTPPort
	}
	if c.Delivery.File.Format == "" {
		c.Delivery.File.Format = "html"
	}
	if c.Delivery.File.RetentionDays == 0 {
		c.Delivery.File.RetentionDays = DefaultRetentionDays
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}
	if c.Monitoring.Address == "" {
		c.Monitoring.Address = DefaultMonitoringAddress
	}
	if c.StateDir == "" {
		c.StateDir = "."
	}
	if c.Env == "" {
		c.Env = "production"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate returns fatal errors and non-fatal warnings. Out-of-range
// tunables are clamped and reported as warnings.
func (c *Config) Validate() (warnings []string, err error) {
	var problems []string

	if c.Connection.Host == "" {
		problems = append(problems, "connection.host is required")
	}
	if c.Connection.Username == "" {
		problems = append(problems, "connection.username is required")
	}
	if c.Connection.Password == "" {
		problems = append(problems, "connection.password is required")
	}

	if c.Scheduling.Preset != "" && c.Scheduling.Cron != "" {
		problems = append(problems, "scheduling.preset and scheduling.cron are mutually exclusive")
	}
	if c.Scheduling.Preset != "" {
		if _, ok := SchedulePresets[c.Scheduling.Preset]; !ok {
			problems = append(problems, fmt.Sprintf("scheduling.preset %q is not one of hourly, daily, weekly", c.Scheduling.Preset))
		}
	}
	if c.Scheduling.Cron != "" {
		if _, perr := cron.ParseStandard(c.Scheduling.Cron); perr != nil {
			problems = append(problems, fmt.Sprintf("scheduling.cron %q: %v", c.Scheduling.Cron, perr))
		}
	}
	if _, tzErr := time.LoadLocation(c.Scheduling.Timezone); tzErr != nil {
		problems = append(problems, fmt.Sprintf("scheduling.timezone %q is not a valid IANA zone", c.Scheduling.Timezone))
	}

	if c.Push.BufferSize < MinPushBufferSize || c.Push.BufferSize > MaxPushBufferSize {
		warnings = append(warnings, fmt.Sprintf("push.buffer_size %d outside [%d, %d]; using %d",
			c.Push.BufferSize, MinPushBufferSize, MaxPushBufferSize, DefaultPushBufferSize))
		c.Push.BufferSize = DefaultPushBufferSize
	}
	if c.Shell.TimeoutSecs < MinShellTimeoutSecs || c.Shell.TimeoutSecs > MaxShellTimeoutSecs {
		warnings = append(warnings, fmt.Sprintf("shell.timeout_seconds %d outside [%d, %d]; using %d",
			c.Shell.TimeoutSecs, MinShellTimeoutSecs, MaxShellTimeoutSecs, DefaultShellTimeoutSecs))
		c.Shell.TimeoutSecs = DefaultShellTimeoutSecs
	}

	if !c.Delivery.Email.Enabled && !c.Delivery.File.Enabled {
		problems = append(problems, "delivery: at least one of email or file must be enabled")
	}
	if c.Delivery.Email.Enabled {
		if c.Delivery.Email.SMTPHost == "" {
			problems = append(problems, "delivery.email.smtp_host is required when email is enabled")
		}
		if c.Delivery.Email.From == "" {
			problems = append(problems, "delivery.email.from is required when email is enabled")
		}
		if len(c.Delivery.Email.Recipients) == 0 {
			problems = append(problems, "delivery.email.recipients must not be empty when email is enabled")
		}
	}
	if c.Delivery.File.Enabled {
		if c.Delivery.File.OutputDir == "" {
			problems = append(problems, "delivery.file.output_dir is required when file delivery is enabled")
		}
		switch c.Delivery.File.Format {
		case "html", "text", "both":
		default:
			problems = append(problems, fmt.Sprintf("delivery.file.format %q must be html, text, or both", c.Delivery.File.Format))
		}
	}

	if c.Integrations.Cloudflare.APIToken != "" && c.Integrations.Cloudflare.ZoneID == "" {
		warnings = append(warnings, "integrations.cloudflare: api_token set without zone_id; integration will be skipped")
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return warnings, nil
}

// CronSpec resolves the effective cron expression, or "" for one-shot
// mode. Call after Validate.
func (c *Config) CronSpec() string {
	if c.Scheduling.Preset != "" {
		return SchedulePresets[c.Scheduling.Preset]
	}
	return c.Scheduling.Cron
}

// Location resolves the scheduling timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func boolPtr(b bool) *bool { return &b }
