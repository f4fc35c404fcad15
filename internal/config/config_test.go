package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
connection:
  host: unifi.example.net
  username: reporter
  password: hunter2
delivery:
  file:
    enabled: true
    output_dir: /tmp/reports
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 443, cfg.Connection.Port)
	assert.Equal(t, "default", cfg.Connection.Site)
	assert.True(t, *cfg.Push.Enabled)
	assert.Equal(t, DefaultPushBufferSize, cfg.Push.BufferSize)
	assert.True(t, *cfg.Shell.Enabled)
	assert.Equal(t, "reporter", cfg.Shell.Username, "shell creds default to controller creds")
	assert.Equal(t, "hunter2", cfg.Shell.Password)
	assert.Equal(t, DefaultLookbackHours, cfg.Lookback.InitialLookbackHours)
	assert.Equal(t, DefaultMinEntries, cfg.Lookback.MinEntriesForSufficient)
	assert.Equal(t, "UTC", cfg.Scheduling.Timezone)
	assert.Equal(t, "", cfg.CronSpec(), "no schedule means one-shot")
}

func TestValidateMissingRequiredFields(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
connection:
  host: unifi.example.net
delivery:
  file:
    enabled: true
    output_dir: /tmp/reports
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection.username")
	assert.Contains(t, err.Error(), "connection.password")
}

func TestValidatePresetAndCronExclusive(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
scheduling:
  preset: daily
  cron: "0 8 * * *"
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateBadCronAndTimezone(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
scheduling:
  cron: "not a cron"
  timezone: Mars/Olympus
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduling.cron")
	assert.Contains(t, err.Error(), "IANA")
}

func TestValidateClampsOutOfRangeTunables(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
push:
  buffer_size: 5
shell:
  timeout_seconds: 900
`))
	require.NoError(t, err)

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, DefaultPushBufferSize, cfg.Push.BufferSize)
	assert.Equal(t, DefaultShellTimeoutSecs, cfg.Shell.TimeoutSecs)
}

func TestValidateRequiresADeliveryTarget(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
connection:
  host: unifi.example.net
  username: reporter
  password: hunter2
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of email or file")
}

func TestValidateEmailRequirements(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
connection:
  host: unifi.example.net
  username: reporter
  password: hunter2
delivery:
  email:
    enabled: true
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp_host")
	assert.Contains(t, err.Error(), "recipients")
}

func TestCronSpecFromPreset(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
scheduling:
  preset: hourly
`))
	require.NoError(t, err)

	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", cfg.CronSpec())
}

func TestSecretEnvOverridesFileValue(t *testing.T) {
	t.Setenv("UNIFI_REPORTER_CONTROLLER_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Connection.Password)
}

func TestSecretFileIndirection(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "cf_token")
	require.NoError(t, os.WriteFile(secret, []byte("tok-123\n"), 0o600))
	t.Setenv("UNIFI_REPORTER_CLOUDFLARE_API_TOKEN_FILE", secret)

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Integrations.Cloudflare.APIToken)
}

func TestSecretMountedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smtp_password"), []byte("s3cret"), 0o600))

	prev := secretsDir
	secretsDir = dir
	t.Cleanup(func() { secretsDir = prev })

	v, ok := LookupSecret("SMTP_PASSWORD")
	require.True(t, ok)
	assert.Equal(t, "s3cret", v)
}
