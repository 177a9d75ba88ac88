package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
)

// newSetupCmd creates the `bloodeclipse setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard that asks for the Discord credentials and
the completion, search and image providers.

Secrets are stored in the OS keyring when it is available, otherwise in the
.env file. Everything else goes to the .env file.

Examples:
  bloodeclipse setup
  bloodeclipse setup --env-file ./deploy/.env`,
		RunE: runSetup,
	}
	cmd.Flags().String("env-file", ".env", "dotenv file to write")
	return cmd
}

// setupAnswers collects the wizard's answers.
type setupAnswers struct {
	GuildID      string
	DiscordToken string

	Completion    string
	CompletionKey string

	Search       string
	GoogleAPIKey string
	GoogleCSEID  string
	BraveAPIKey  string

	Image        string
	ModelsLabKey string

	UseKeyring bool
	Confirmed  bool
}

// entries splits the answers into plain settings and secrets, keyed by the
// environment variable the loader reads.
func (a *setupAnswers) entries() (plain, secrets map[string]string) {
	plain = map[string]string{
		"GUILD_ID":            a.GuildID,
		"COMPLETION_PROVIDER": a.Completion,
		"SEARCH_PROVIDER":     a.Search,
		"IMAGE_PROVIDER":      a.Image,
	}
	secrets = map[string]string{
		"DISCORD_TOKEN": a.DiscordToken,
	}

	switch a.Completion {
	case "gemini":
		secrets["GEMINI_API_KEY"] = a.CompletionKey
	default:
		secrets["OPENROUTER_API_KEY"] = a.CompletionKey
	}

	switch a.Search {
	case "google":
		secrets["GOOGLE_API_KEY"] = a.GoogleAPIKey
		plain["GOOGLE_CSE_ID"] = a.GoogleCSEID
	case "brave":
		secrets["BRAVE_API_KEY"] = a.BraveAPIKey
	}

	if a.Image == "modelslab" {
		secrets["MODELSLAB_API_KEY"] = a.ModelsLabKey
	}

	for _, m := range []map[string]string{plain, secrets} {
		for k, v := range m {
			if v = strings.TrimSpace(v); v == "" {
				delete(m, k)
			} else {
				m[k] = v
			}
		}
	}
	return plain, secrets
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("setup needs an interactive terminal; set the variables in .env instead")
	}
	envFile, _ := cmd.Flags().GetString("env-file")

	defaults := copilot.DefaultConfig()
	answers := &setupAnswers{
		Completion: defaults.Completion.Provider,
		Search:     defaults.Search.Provider,
		Image:      defaults.Image.Provider,
	}
	keyringOK := copilot.KeyringAvailable()
	answers.UseKeyring = keyringOK

	form := setupForm(answers, keyringOK)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}
	if !answers.Confirmed {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing written.")
		return nil
	}

	plain, secrets := answers.entries()
	if answers.UseKeyring {
		for name, value := range secrets {
			if err := copilot.StoreKeyring(name, value); err != nil {
				return fmt.Errorf("storing %s in the OS keyring: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %s stored in the OS keyring\n", name)
		}
		secrets = nil
	}

	for k, v := range secrets {
		plain[k] = v
	}
	if err := mergeEnvFile(envFile, plain); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %d settings written to %s\n", len(plain), envFile)
	fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'bloodeclipse config check', then 'bloodeclipse serve'.")
	return nil
}

// setupForm builds the wizard. Provider specific groups are hidden unless
// their provider is selected.
func setupForm(a *setupAnswers, keyringOK bool) *huh.Form {
	storageNote := "The OS keyring is not available; secrets go to the .env file."
	if keyringOK {
		storageNote = "Secrets can be kept in the OS keyring instead of the .env file."
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("BloodEclipse-AI setup").
				Description("Discord bot credentials come from the Developer Portal."),
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Validate(required("the bot token")).
				Value(&a.DiscordToken),
			huh.NewInput().
				Title("Guild (server) ID").
				Description("Slash commands are registered on this guild.").
				Validate(required("the guild ID")).
				Value(&a.GuildID),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Completion provider").
				Options(
					huh.NewOption("OpenRouter", "openrouter"),
					huh.NewOption("OpenAI compatible", "openai"),
					huh.NewOption("Google Gemini", "gemini"),
				).
				Value(&a.Completion),
			huh.NewInput().
				TitleFunc(func() string {
					if a.Completion == "gemini" {
						return "Gemini API key"
					}
					return "OpenRouter / OpenAI API key"
				}, &a.Completion).
				EchoMode(huh.EchoModePassword).
				Validate(required("the completion API key")).
				Value(&a.CompletionKey),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Web search provider").
				Options(
					huh.NewOption("DuckDuckGo (no key)", "duckduckgo"),
					huh.NewOption("Google Programmable Search", "google"),
					huh.NewOption("Brave Search", "brave"),
				).
				Value(&a.Search),
			huh.NewSelect[string]().
				Title("Image provider").
				Options(
					huh.NewOption("ModelsLab", "modelslab"),
					huh.NewOption("Google Imagen", "gemini"),
				).
				Value(&a.Image),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Google API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.GoogleAPIKey),
			huh.NewInput().
				Title("Google search engine ID (cx)").
				Value(&a.GoogleCSEID),
		).WithHideFunc(func() bool { return a.Search != "google" }),

		huh.NewGroup(
			huh.NewInput().
				Title("Brave Search API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.BraveAPIKey),
		).WithHideFunc(func() bool { return a.Search != "brave" }),

		huh.NewGroup(
			huh.NewInput().
				Title("ModelsLab API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.ModelsLabKey),
		).WithHideFunc(func() bool { return a.Image != "modelslab" }),

		huh.NewGroup(
			huh.NewNote().Title("Storage").Description(storageNote),
			huh.NewConfirm().
				Title("Store secrets in the OS keyring?").
				Affirmative("Keyring").
				Negative(".env file").
				Value(&a.UseKeyring),
		).WithHideFunc(func() bool { return !keyringOK }),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Write the configuration?").
				Affirmative("Write").
				Negative("Cancel").
				Value(&a.Confirmed),
		),
	)
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// mergeEnvFile writes values into a dotenv file, keeping the keys already
// there. The file is created with owner-only permissions.
func mergeEnvFile(path string, values map[string]string) error {
	env := make(map[string]string)
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		env = existing
	}

	for k, v := range values {
		env[k] = v
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
