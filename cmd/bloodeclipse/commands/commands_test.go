package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/copilot"
)

// clearEnv blanks every variable the loader reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "OPENAI_API_KEY", "OPENROUTER_API_KEY",
		"OPENROUTER_MODEL", "COMPLETION_MODEL", "COMPLETION_PROVIDER", "GEMINI_API_KEY",
		"SEARCH_PROVIDER", "GOOGLE_API_KEY", "GOOGLE_CSE_ID", "BRAVE_API_KEY",
		"IMAGE_PROVIDER", "MODELSLAB_API_KEY", "PORT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd("test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSetupAnswersEntries(t *testing.T) {
	tests := []struct {
		name        string
		answers     setupAnswers
		wantPlain   []string
		wantSecrets []string
	}{
		{
			name: "openrouter with duckduckgo",
			answers: setupAnswers{
				GuildID: "123", DiscordToken: "tok", Completion: "openrouter", CompletionKey: "sk",
				Search: "duckduckgo", Image: "modelslab", ModelsLabKey: "ml",
			},
			wantPlain:   []string{"GUILD_ID", "COMPLETION_PROVIDER", "SEARCH_PROVIDER", "IMAGE_PROVIDER"},
			wantSecrets: []string{"DISCORD_TOKEN", "OPENROUTER_API_KEY", "MODELSLAB_API_KEY"},
		},
		{
			name: "gemini with google",
			answers: setupAnswers{
				GuildID: "123", DiscordToken: "tok", Completion: "gemini", CompletionKey: "g",
				Search: "google", GoogleAPIKey: "gk", GoogleCSEID: "cx", Image: "gemini",
			},
			wantPlain:   []string{"GUILD_ID", "COMPLETION_PROVIDER", "SEARCH_PROVIDER", "IMAGE_PROVIDER", "GOOGLE_CSE_ID"},
			wantSecrets: []string{"DISCORD_TOKEN", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		},
		{
			name: "blank answers are dropped",
			answers: setupAnswers{
				GuildID: "  ", DiscordToken: "tok", Completion: "openrouter",
				Search: "brave", BraveAPIKey: " bk ", Image: "modelslab",
			},
			wantPlain:   []string{"COMPLETION_PROVIDER", "SEARCH_PROVIDER", "IMAGE_PROVIDER"},
			wantSecrets: []string{"DISCORD_TOKEN", "BRAVE_API_KEY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain, secrets := tt.answers.entries()
			if len(plain) != len(tt.wantPlain) {
				t.Errorf("plain = %v, want keys %v", plain, tt.wantPlain)
			}
			for _, k := range tt.wantPlain {
				if plain[k] == "" {
					t.Errorf("plain missing %s", k)
				}
			}
			if len(secrets) != len(tt.wantSecrets) {
				t.Errorf("secrets = %v, want keys %v", secrets, tt.wantSecrets)
			}
			for _, k := range tt.wantSecrets {
				if secrets[k] == "" {
					t.Errorf("secrets missing %s", k)
				}
			}
		})
	}

	_, secrets := (&setupAnswers{Completion: "openrouter", Search: "brave", BraveAPIKey: " bk "}).entries()
	if secrets["BRAVE_API_KEY"] != "bk" {
		t.Errorf("values should be trimmed, got %q", secrets["BRAVE_API_KEY"])
	}
}

func TestMergeEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KEEP=1\nGUILD_ID=old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := mergeEnvFile(path, map[string]string{"GUILD_ID": "new", "DISCORD_TOKEN": "tok"}); err != nil {
		t.Fatalf("mergeEnvFile: %v", err)
	}

	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if env["KEEP"] != "1" || env["GUILD_ID"] != "new" || env["DISCORD_TOKEN"] != "tok" {
		t.Errorf("env = %v", env)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	fresh := filepath.Join(t.TempDir(), ".env")
	if err := mergeEnvFile(fresh, map[string]string{"A": "b"}); err != nil {
		t.Fatalf("new file: %v", err)
	}
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{":8080", "/health", "http://localhost:8080/health"},
		{"", "/health", "http://localhost:8080/health"},
		{"0.0.0.0:9000", "/ready", "http://0.0.0.0:9000/ready"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.addr, tt.path); got != tt.want {
			t.Errorf("healthURL(%q, %q) = %q, want %q", tt.addr, tt.path, got, tt.want)
		}
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := checkHealth(context.Background(), srv.URL+"/health", &out); err != nil {
		t.Fatalf("health: %v", err)
	}
	if out.String() != `{"status":"ok"}`+"\n" {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := checkHealth(context.Background(), srv.URL+"/ready", &out); err == nil {
		t.Error("expected error for 503")
	}
	if !strings.Contains(out.String(), "not_ready") {
		t.Errorf("body should be printed, got %q", out.String())
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "super-secret-token")

	path := writeConfig(t, "name: Test Bot\n")
	out, err := execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret-token") {
		t.Error("secret leaked in config show")
	}
	if !strings.Contains(out, "****") || !strings.Contains(out, "Test Bot") {
		t.Errorf("output:\n%s", out)
	}
}

func TestConfigCheck(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	path := writeConfig(t, "name: Test Bot\n")

	out, err := execute(t, "config", "check", "--config", path)
	var missing *copilot.MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingConfigError", err)
	}
	for _, name := range []string{"DISCORD_TOKEN", "GUILD_ID", "OPENROUTER_API_KEY", "MODELSLAB_API_KEY"} {
		if !strings.Contains(out, "✗ "+name) {
			t.Errorf("missing %s in output:\n%s", name, out)
		}
	}

	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("GUILD_ID", "123")
	t.Setenv("OPENROUTER_API_KEY", "sk")
	t.Setenv("MODELSLAB_API_KEY", "ml")
	out, err = execute(t, "config", "check", "--config", path)
	if err != nil {
		t.Fatalf("complete config: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok: completion=openrouter") {
		t.Errorf("output:\n%s", out)
	}
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, err := execute(t, "completion", shell)
		if err != nil {
			t.Fatalf("%s: %v", shell, err)
		}
		if !strings.Contains(out, "bloodeclipse") {
			t.Errorf("%s script does not mention the binary", shell)
		}
	}

	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestChatRejectsUnroutedLine(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk")
	t.Setenv("MODELSLAB_API_KEY", "ml")
	path := writeConfig(t, "name: Test Bot\n")

	_, err := execute(t, "chat", "--config", path, "hello there")
	if err == nil || !strings.Contains(err.Error(), "nothing to answer") {
		t.Errorf("err = %v", err)
	}
}

func TestServeFailsFastOnMissingConfig(t *testing.T) {
	keyring.MockInit()
	clearEnv(t)
	t.Setenv("GUILD_ID", "123")
	t.Setenv("OPENROUTER_API_KEY", "sk")
	t.Setenv("MODELSLAB_API_KEY", "ml")
	path := writeConfig(t, "name: Test Bot\nlogging:\n  level: error\n")

	_, err := execute(t, "serve", "--config", path)
	var missing *copilot.MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingConfigError", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != "DISCORD_TOKEN" {
		t.Errorf("missing = %v, want [DISCORD_TOKEN]", missing.Missing)
	}
}
