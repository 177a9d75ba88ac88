package copilot

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.Token = "discord-token"
	cfg.Discord.GuildID = "123"
	cfg.Completion.APIKey = "sk-or"
	cfg.Image.ModelsLabAPIKey = "ml-key"
	return cfg
}

func TestValidate_MissingSecrets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:   "all defaults missing",
			mutate: func(c *Config) { *c = *DefaultConfig() },
			want:   []string{"DISCORD_TOKEN", "GUILD_ID", "OPENROUTER_API_KEY", "MODELSLAB_API_KEY"},
		},
		{
			name:   "missing token only",
			mutate: func(c *Config) { c.Discord.Token = "  " },
			want:   []string{"DISCORD_TOKEN"},
		},
		{
			name: "gemini everywhere shares one key",
			mutate: func(c *Config) {
				c.Completion.Provider = "gemini"
				c.Image.Provider = "gemini"
			},
			want: []string{"GEMINI_API_KEY"},
		},
		{
			name:   "google search",
			mutate: func(c *Config) { c.Search.Provider = "google" },
			want:   []string{"GOOGLE_API_KEY", "GOOGLE_CSE_ID"},
		},
		{
			name:   "brave search",
			mutate: func(c *Config) { c.Search.Provider = "brave" },
			want:   []string{"BRAVE_API_KEY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			var mce *MissingConfigError
			if !errors.As(err, &mce) {
				t.Fatalf("Validate() = %v, want *MissingConfigError", err)
			}
			if !reflect.DeepEqual(mce.Missing, tt.want) {
				t.Errorf("Missing = %v, want %v", mce.Missing, tt.want)
			}
		})
	}
}

func TestValidate_UnknownNames(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"completion provider", func(c *Config) { c.Completion.Provider = "llama" }},
		{"search provider", func(c *Config) { c.Search.Provider = "bing" }},
		{"image provider", func(c *Config) { c.Image.Provider = "dalle" }},
		{"prefix flow", func(c *Config) { c.Router.PrefixFlow = "guess" }},
		{"intent mode", func(c *Config) { c.Router.IntentMode = "vibes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var mce *MissingConfigError
			if errors.As(err, &mce) {
				t.Errorf("expected a plain error, got %v", err)
			}
		})
	}
}

func TestValidateProviders_SkipsDiscord(t *testing.T) {
	cfg := validConfig()
	cfg.Discord.Token = ""
	cfg.Discord.GuildID = ""

	if err := cfg.ValidateProviders(); err != nil {
		t.Fatalf("ValidateProviders() = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should still require Discord credentials")
	}
}

func TestMissingConfigError_Message(t *testing.T) {
	err := &MissingConfigError{Missing: []string{"DISCORD_TOKEN", "GUILD_ID"}}
	want := "missing required environment variables: DISCORD_TOKEN, GUILD_ID"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("BE_TEST_SET", "value")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"token: ${BE_TEST_SET}", "token: value", false},
		{"token: $BE_TEST_SET", "token: value", false},
		{"token: ${BE_TEST_UNSET}", "token: ", false},
		{"price: $BE_TEST_UNSET", "price: $BE_TEST_UNSET", false},
		{"token: ${BE_TEST_UNSET:-fallback}", "token: fallback", false},
		{"token: ${BE_TEST_SET:-fallback}", "token: value", false},
		{"token: ${BE_TEST_UNSET:?token is required}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := expandEnvVars(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	data := []byte(`
completion:
  model: gpt-4o
  max_retries: 0
router:
  prefix_flow: search
  request_timeout: 45s
search:
  bias_terms: []
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Completion.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.Completion.Model)
	}
	if cfg.Completion.MaxRetries != 0 {
		t.Errorf("max_retries = %d, want 0", cfg.Completion.MaxRetries)
	}
	if cfg.Router.PrefixFlow != FlowSearch {
		t.Errorf("prefix_flow = %q", cfg.Router.PrefixFlow)
	}
	if cfg.Router.RequestTimeout != 45*time.Second {
		t.Errorf("request_timeout = %v", cfg.Router.RequestTimeout)
	}
	if len(cfg.Search.BiasTerms) != 0 {
		t.Errorf("bias_terms = %v, want empty", cfg.Search.BiasTerms)
	}
	// Untouched defaults survive.
	if cfg.Router.AskPrefix != "!ai" || cfg.Completion.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("defaults lost: %+v", cfg.Router)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte("router: [")); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("GUILD_ID", "42")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	t.Setenv("OPENROUTER_MODEL", "meta/llama")
	t.Setenv("COMPLETION_MODEL", "gpt-4o")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("SEARCH_PROVIDER", "brave")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	if cfg.Discord.Token != "tok" || cfg.Discord.GuildID != "42" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if cfg.Completion.APIKey != "sk-or" {
		t.Errorf("OPENROUTER_API_KEY should win, got %q", cfg.Completion.APIKey)
	}
	if cfg.Completion.Model != "gpt-4o" {
		t.Errorf("COMPLETION_MODEL should win, got %q", cfg.Completion.Model)
	}
	if cfg.Completion.GeminiAPIKey != "gem" || cfg.Image.GeminiAPIKey != "gem" {
		t.Errorf("GEMINI_API_KEY not applied to both providers")
	}
	if cfg.Search.Provider != "brave" {
		t.Errorf("search provider = %q", cfg.Search.Provider)
	}
	if !cfg.Gateway.Enabled || cfg.Gateway.Address != ":9090" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("BE_TEST_GUILD", "777")
	t.Setenv("DISCORD_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
discord:
  token: from-file
  guild_id: ${BE_TEST_GUILD}
router:
  ask_prefix: "!be"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Discord.GuildID != "777" {
		t.Errorf("guild = %q, want expanded 777", cfg.Discord.GuildID)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("token = %q, environment should override the file", cfg.Discord.Token)
	}
	if cfg.Router.AskPrefix != "!be" {
		t.Errorf("ask prefix = %q", cfg.Router.AskPrefix)
	}
}

func TestLoadConfig_UnsetReferenceFailsValidation(t *testing.T) {
	for _, name := range []string{"DISCORD_TOKEN", "GUILD_ID", "OPENAI_API_KEY", "OPENROUTER_API_KEY",
		"MODELSLAB_API_KEY", "IMAGE_PROVIDER", "COMPLETION_PROVIDER", "SEARCH_PROVIDER"} {
		t.Setenv(name, "")
	}
	os.Unsetenv("MODELSLAB_API_KEY")

	tests := []struct {
		name string
		ref  string
	}{
		{"braced", "${MODELSLAB_API_KEY}"},
		{"bare", "$BE_TEST_BARE_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			data := []byte(`
discord:
  token: tok
  guild_id: "123"
completion:
  api_key: sk
image:
  provider: modelslab
  modelslab_api_key: ` + tt.ref + "\n")
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}

			var missing *MissingConfigError
			if err := cfg.Validate(); !errors.As(err, &missing) {
				t.Fatalf("Validate() = %v, want MissingConfigError (key %q)", err, cfg.Image.ModelsLabAPIKey)
			}
			if len(missing.Missing) != 1 || missing.Missing[0] != "MODELSLAB_API_KEY" {
				t.Errorf("missing = %v", missing.Missing)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	r := cfg.Redacted()

	if r.Discord.Token != "****" || r.Completion.APIKey != "****" || r.Image.ModelsLabAPIKey != "****" {
		t.Errorf("secrets not masked: %+v", r)
	}
	if r.Search.BraveAPIKey != "" {
		t.Errorf("empty secret should stay empty, got %q", r.Search.BraveAPIKey)
	}
	if cfg.Discord.Token != "discord-token" {
		t.Error("Redacted modified the original config")
	}
	if r.Discord.GuildID != "123" {
		t.Errorf("non-secret changed: %q", r.Discord.GuildID)
	}
}

func TestResolveSecrets_FromKeyring(t *testing.T) {
	keyring.MockInit()

	if err := StoreKeyring("DISCORD_TOKEN", "kr-token"); err != nil {
		t.Fatal(err)
	}
	if err := StoreKeyring("GEMINI_API_KEY", "kr-gem"); err != nil {
		t.Fatal(err)
	}
	if err := StoreKeyring("MODELSLAB_API_KEY", "kr-ml"); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Image.ModelsLabAPIKey = "already-set"

	resolved := ResolveSecrets(cfg, discardLogger())

	if cfg.Discord.Token != "kr-token" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Completion.GeminiAPIKey != "kr-gem" || cfg.Image.GeminiAPIKey != "kr-gem" {
		t.Errorf("gemini keys not resolved")
	}
	if cfg.Image.ModelsLabAPIKey != "already-set" {
		t.Errorf("keyring must not override a set secret, got %q", cfg.Image.ModelsLabAPIKey)
	}

	want := []string{"DISCORD_TOKEN", "GEMINI_API_KEY"}
	if !reflect.DeepEqual(resolved, want) {
		t.Errorf("resolved = %v, want %v", resolved, want)
	}
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	if !KeyringAvailable() {
		t.Fatal("mock keyring should be available")
	}
	if err := StoreKeyring("BRAVE_API_KEY", "b"); err != nil {
		t.Fatal(err)
	}
	if got := GetKeyring("BRAVE_API_KEY"); got != "b" {
		t.Errorf("GetKeyring = %q", got)
	}
	if err := DeleteKeyring("BRAVE_API_KEY"); err != nil {
		t.Fatal(err)
	}
	if got := GetKeyring("BRAVE_API_KEY"); got != "" {
		t.Errorf("after delete GetKeyring = %q", got)
	}
	if err := DeleteKeyring("BRAVE_API_KEY"); err != nil {
		t.Errorf("deleting a missing secret: %v", err)
	}
}
