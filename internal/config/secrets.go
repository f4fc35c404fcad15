package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "UNIFI_REPORTER_"

// defaultSecretsDir is where container platforms mount file secrets.
const defaultSecretsDir = "/run/secrets"

// secretsDir is a var so tests can point it at a temp directory.
var secretsDir = defaultSecretsDir

func init() {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()
}

// LookupSecret resolves a secret by name, in precedence order:
//  1. env var UNIFI_REPORTER_<NAME>
//  2. env var UNIFI_REPORTER_<NAME>_FILE pointing at a file
//  3. a file <name> (lowercased) in the mounted secrets directory
func LookupSecret(name string) (string, bool) {
	key := envPrefix + strings.ToUpper(name)
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	if path, ok := os.LookupEnv(key + "_FILE"); ok && path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data)), true
		}
	}
	mounted := filepath.Join(secretsDir, strings.ToLower(name))
	if data, err := os.ReadFile(mounted); err == nil {
		return strings.TrimSpace(string(data)), true
	}
	return "", false
}

// resolveSecrets overlays environment-provided secrets onto the file
// config. File values survive when no override exists.
func (c *Config) resolveSecrets() {
	overlay := func(dst *string, name string) {
		if v, ok := LookupSecret(name); ok {
			*dst = v
		}
	}
	overlay(&c.Connection.Host, "CONTROLLER_HOST")
	overlay(&c.Connection.Username, "CONTROLLER_USERNAME")
	overlay(&c.Connection.Password, "CONTROLLER_PASSWORD")
	overlay(&c.Shell.Username, "SHELL_USERNAME")
	overlay(&c.Shell.Password, "SHELL_PASSWORD")
	overlay(&c.Delivery.Email.Username, "SMTP_USERNAME")
	overlay(&c.Delivery.Email.Password, "SMTP_PASSWORD")
	overlay(&c.Integrations.Cloudflare.APIToken, "CLOUDFLARE_API_TOKEN")
	overlay(&c.Integrations.Cloudflare.ZoneID, "CLOUDFLARE_ZONE_ID")
}
