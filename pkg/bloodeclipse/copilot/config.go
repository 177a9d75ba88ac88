// Package copilot – config.go defines all configuration structures
// for the BloodEclipse assistant.
package copilot

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels/discord"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/gateway"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/imagegen"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/search"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in embeds.
	Name string `yaml:"name"`

	// Discord configures the Discord channel.
	Discord discord.Config `yaml:"discord"`

	// Completion configures the chat-completion provider.
	Completion CompletionConfig `yaml:"completion"`

	// Search configures the web search stage.
	Search search.Config `yaml:"search"`

	// Image configures image generation.
	Image imagegen.Config `yaml:"image"`

	// Router configures prefixes, flows and per-request limits.
	Router RouterConfig `yaml:"router"`

	// Persona holds the system prompts.
	Persona PersonaConfig `yaml:"persona"`

	// Embed configures the reply card.
	Embed EmbedConfig `yaml:"embed"`

	// Presence configures the rotating activity line.
	Presence PresenceConfig `yaml:"presence"`

	// Gateway configures the health HTTP server.
	Gateway gateway.Config `yaml:"gateway"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// CompletionConfig configures the chat-completion provider.
type CompletionConfig struct {
	// Provider is "openrouter" (any OpenAI-compatible endpoint) or "gemini".
	Provider string `yaml:"provider"`

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates the OpenAI-compatible endpoint.
	APIKey string `yaml:"api_key"`

	// GeminiAPIKey authenticates the Gemini API.
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// GeminiBaseURL overrides the Gemini API root.
	GeminiBaseURL string `yaml:"gemini_base_url"`

	// GeminiThinkingBudget caps the thinking tokens of Gemini 2.5 models,
	// which count against MaxTokens. Zero turns thinking off where the
	// model allows it.
	GeminiThinkingBudget int `yaml:"gemini_thinking_budget"`

	// Model is the model identifier (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is how many times a retryable failure is retried.
	// Zero sends exactly one request.
	MaxRetries int `yaml:"max_retries"`

	// Referer and Title are sent as OpenRouter attribution headers.
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`
}

// Prefix flows for the !ai command.
const (
	FlowClassify = "classify"
	FlowSearch   = "search"
	FlowDirect   = "direct"
)

// Intent classification modes.
const (
	IntentStructured = "structured"
	IntentHeuristic  = "heuristic"
)

// RouterConfig configures how inbound events become routes.
type RouterConfig struct {
	// AskPrefix triggers a question (default "!ai").
	AskPrefix string `yaml:"ask_prefix"`

	// ImaginePrefix triggers image generation (default "!imagine").
	ImaginePrefix string `yaml:"imagine_prefix"`

	// RoastPrefix triggers a roast (default "!roast").
	RoastPrefix string `yaml:"roast_prefix"`

	// PrefixFlow decides what the ask prefix does: "classify", "search" or "direct".
	PrefixFlow string `yaml:"prefix_flow"`

	// IntentMode is "structured" (JSON decision) or "heuristic".
	IntentMode string `yaml:"intent_mode"`

	// RequestTimeout bounds one pipeline run.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Typing shows a typing indicator while a prefix query runs.
	Typing bool `yaml:"typing"`

	// Reactions are the emojis one of which is added to answered prefix messages.
	// Empty disables reactions.
	Reactions []string `yaml:"reactions"`
}

// PersonaConfig holds the system prompts.
type PersonaConfig struct {
	// System is the main persona prompt.
	System string `yaml:"system"`

	// Roast is the persona used by the roast command.
	Roast string `yaml:"roast"`
}

// EmbedConfig configures the reply card.
type EmbedConfig struct {
	Title  string `yaml:"title"`
	Color  int    `yaml:"color"`
	Footer string `yaml:"footer"`
}

// PresenceConfig configures the rotating activity line.
type PresenceConfig struct {
	// Activities are shown in turn as "Watching <activity>".
	Activities []string `yaml:"activities"`

	// Rotate is the cron schedule for rotation. Empty disables rotation.
	Rotate string `yaml:"rotate"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "BloodEclipse-AI",
		Discord: discord.DefaultConfig(),
		Completion: CompletionConfig{
			Provider:    "openrouter",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   600,
			Temperature: 0.8,
			TopP:        0.9,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			Title:       "BloodEclipse-AI",
		},
		Search: search.DefaultConfig(),
		Image:  imagegen.DefaultConfig(),
		Router: RouterConfig{
			AskPrefix:      "!ai",
			ImaginePrefix:  "!imagine",
			RoastPrefix:    "!roast",
			PrefixFlow:     FlowClassify,
			IntentMode:     IntentStructured,
			RequestTimeout: 90 * time.Second,
			Typing:         true,
			Reactions:      []string{"🔥", "✨", "💯", "🎮", "😎", "🤯"},
		},
		Persona: PersonaConfig{
			System: DefaultSystemPrompt,
			Roast:  DefaultRoastPrompt,
		},
		Embed: EmbedConfig{
			Title:  "BloodEclipse-AI ⚔️",
			Color:  0xEE6A50,
			Footer: "BloodEclipse • Where Winds Meet — Ask me anything with !ai",
		},
		Presence: PresenceConfig{
			Activities: []string{"WWM Guides | !ai", "boss strats | !ai", "your builds | !imagine"},
			Rotate:     "@every 15m",
		},
		Gateway: gateway.Config{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// MissingConfigError lists the required environment variables that are unset.
type MissingConfigError struct {
	Missing []string
}

func (e *MissingConfigError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Missing, ", ")
}

// Validate checks that every secret the bot and its selected providers need
// is present and that the strategy names are known.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateProviders is Validate without the Discord credentials, for the
// local console.
func (c *Config) ValidateProviders() error {
	return c.validate(false)
}

func (c *Config) validate(withDiscord bool) error {
	var missing []string
	need := func(value, env string) {
		if v := strings.TrimSpace(value); v == "" || isUnresolvedRef(v) {
			missing = append(missing, env)
		}
	}

	if withDiscord {
		need(c.Discord.Token, "DISCORD_TOKEN")
		need(c.Discord.GuildID, "GUILD_ID")
	}

	switch c.Completion.Provider {
	case "openrouter", "openai":
		need(c.Completion.APIKey, "OPENROUTER_API_KEY")
	case "gemini":
		need(c.Completion.GeminiAPIKey, "GEMINI_API_KEY")
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}

	switch c.Search.Provider {
	case "duckduckgo", "ddg":
	case "google":
		need(c.Search.GoogleAPIKey, "GOOGLE_API_KEY")
		need(c.Search.GoogleCSEID, "GOOGLE_CSE_ID")
	case "brave":
		need(c.Search.BraveAPIKey, "BRAVE_API_KEY")
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}

	switch c.Image.Provider {
	case "modelslab":
		need(c.Image.ModelsLabAPIKey, "MODELSLAB_API_KEY")
	case "gemini", "imagen":
		need(c.Image.GeminiAPIKey, "GEMINI_API_KEY")
	default:
		return fmt.Errorf("unknown image provider %q", c.Image.Provider)
	}

	switch c.Router.PrefixFlow {
	case FlowClassify, FlowSearch, FlowDirect:
	default:
		return fmt.Errorf("unknown router.prefix_flow %q", c.Router.PrefixFlow)
	}
	switch c.Router.IntentMode {
	case IntentStructured, IntentHeuristic:
	default:
		return fmt.Errorf("unknown router.intent_mode %q", c.Router.IntentMode)
	}

	if len(missing) > 0 {
		return &MissingConfigError{Missing: dedupe(missing)}
	}
	return nil
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
