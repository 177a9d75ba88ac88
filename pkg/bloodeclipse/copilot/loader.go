// Package copilot – loader.go loads configuration from defaults, an optional
// YAML file, .env files and the process environment.
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (if any), then environment overrides. Secrets still missing afterwards can
// be filled from the OS keyring with ResolveSecrets.
func LoadConfig(path string) (*Config, error) {
	// Load .env files (silently ignore if not found).
	loadEnvFiles()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded, err := expandEnvVars(string(data))
		if err != nil {
			return nil, fmt.Errorf("expanding environment variables: %w", err)
		}

		cfg, err = ParseConfig([]byte(expanded))
		if err != nil {
			return nil, err
		}

		checkFilePermissions(path)
	}

	ApplyEnv(cfg)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"bloodeclipse.yaml",
		"bloodeclipse.yml",
		"configs/config.yaml",
		"configs/bloodeclipse.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envBinding maps an environment variable onto a config field.
type envBinding struct {
	name   string
	secret bool
	get    func(*Config) string
	set    func(*Config, string)
}

// envBindings lists every variable the bot reads, in precedence order:
// later bindings for the same field win.
var envBindings = []envBinding{
	{name: "DISCORD_TOKEN", secret: true,
		get: func(c *Config) string { return c.Discord.Token },
		set: func(c *Config, v string) { c.Discord.Token = v }},
	{name: "GUILD_ID",
		get: func(c *Config) string { return c.Discord.GuildID },
		set: func(c *Config, v string) { c.Discord.GuildID = v }},
	{name: "OPENAI_API_KEY", secret: true,
		get: func(c *Config) string { return c.Completion.APIKey },
		set: func(c *Config, v string) { c.Completion.APIKey = v }},
	{name: "OPENROUTER_API_KEY", secret: true,
		get: func(c *Config) string { return c.Completion.APIKey },
		set: func(c *Config, v string) { c.Completion.APIKey = v }},
	{name: "OPENROUTER_MODEL",
		set: func(c *Config, v string) { c.Completion.Model = v }},
	{name: "COMPLETION_MODEL",
		set: func(c *Config, v string) { c.Completion.Model = v }},
	{name: "COMPLETION_PROVIDER",
		set: func(c *Config, v string) { c.Completion.Provider = v }},
	{name: "GEMINI_API_KEY", secret: true,
		get: func(c *Config) string {
			if c.Completion.GeminiAPIKey == "" || c.Image.GeminiAPIKey == "" {
				return ""
			}
			return c.Completion.GeminiAPIKey
		},
		set: func(c *Config, v string) {
			c.Completion.GeminiAPIKey = v
			c.Image.GeminiAPIKey = v
		}},
	{name: "SEARCH_PROVIDER",
		set: func(c *Config, v string) { c.Search.Provider = v }},
	{name: "GOOGLE_API_KEY", secret: true,
		get: func(c *Config) string { return c.Search.GoogleAPIKey },
		set: func(c *Config, v string) { c.Search.GoogleAPIKey = v }},
	{name: "GOOGLE_CSE_ID",
		get: func(c *Config) string { return c.Search.GoogleCSEID },
		set: func(c *Config, v string) { c.Search.GoogleCSEID = v }},
	{name: "BRAVE_API_KEY", secret: true,
		get: func(c *Config) string { return c.Search.BraveAPIKey },
		set: func(c *Config, v string) { c.Search.BraveAPIKey = v }},
	{name: "IMAGE_PROVIDER",
		set: func(c *Config, v string) { c.Image.Provider = v }},
	{name: "MODELSLAB_API_KEY", secret: true,
		get: func(c *Config) string { return c.Image.ModelsLabAPIKey },
		set: func(c *Config, v string) { c.Image.ModelsLabAPIKey = v }},
	{name: "PORT",
		set: func(c *Config, v string) {
			c.Gateway.Enabled = true
			c.Gateway.Address = ":" + v
		}},
	{name: "LOG_LEVEL",
		set: func(c *Config, v string) { c.Logging.Level = v }},
	{name: "LOG_FORMAT",
		set: func(c *Config, v string) { c.Logging.Format = v }},
}

// ApplyEnv overrides config fields with the set environment variables.
func ApplyEnv(cfg *Config) {
	for _, b := range envBindings {
		if v := os.Getenv(b.name); v != "" {
			b.set(cfg, v)
		}
	}
}

// SecretNames returns the environment variable names that hold secrets.
func SecretNames() []string {
	var names []string
	for _, b := range envBindings {
		if b.secret {
			names = append(names, b.name)
		}
	}
	return names
}

// Redacted returns a copy of the config with every secret masked.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&cp.Discord.Token)
	mask(&cp.Completion.APIKey)
	mask(&cp.Completion.GeminiAPIKey)
	mask(&cp.Search.GoogleAPIKey)
	mask(&cp.Search.BraveAPIKey)
	mask(&cp.Image.ModelsLabAPIKey)
	mask(&cp.Image.GeminiAPIKey)
	return &cp
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		// godotenv.Load does NOT overwrite existing env vars.
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR
// references with environment values. An unset ${VAR} expands to "" so a
// missing secret stays missing; an unset bare $VAR is kept as text (prompts
// may contain dollar signs); an unset ${VAR:?error} is an error.
func expandEnvVars(input string) (string, error) {
	var firstErr error

	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Groups: 1=varName, 2=modifier(-|?), 3=value, 4=bareVar
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		switch modifier {
		case "-":
			return value
		case "?":
			if firstErr == nil {
				if value == "" {
					value = "required environment variable not set"
				}
				firstErr = fmt.Errorf("%s: %s", varName, value)
			}
			return ""
		default:
			return ""
		}
	})

	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// isUnresolvedRef reports whether v is nothing but an environment reference
// that expansion left in place.
func isUnresolvedRef(v string) bool {
	loc := envVarPattern.FindStringIndex(v)
	return loc != nil && loc[0] == 0 && loc[1] == len(v)
}

// checkFilePermissions warns if the config file is group or world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
