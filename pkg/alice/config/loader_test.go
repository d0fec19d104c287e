package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOverlaysDefaults(t *testing.T) {
	data := []byte(`
name: TestBot
worker:
  timeout_seconds: 30
scheduler:
  tick_seconds: 15
channels:
  telegram:
    enabled: true
    token: abc123
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "TestBot" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Worker.TimeoutSeconds != 30 {
		t.Errorf("worker timeout = %d, want 30", cfg.Worker.TimeoutSeconds)
	}
	if cfg.Scheduler.TickSeconds != 15 {
		t.Errorf("tick = %d, want 15", cfg.Scheduler.TickSeconds)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "abc123" {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}

	// Unset fields keep their defaults.
	if cfg.Database.Path != "data/alice.db" {
		t.Errorf("database path = %q, want default", cfg.Database.Path)
	}
	if cfg.Assistant.MemoryWindow != 20 {
		t.Errorf("memory window = %d, want default 20", cfg.Assistant.MemoryWindow)
	}
	if cfg.Worker.Image != "alice-worker" {
		t.Errorf("image = %q, want default", cfg.Worker.Image)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("name: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ALICE_TEST_SET", "hello")
	os.Unsetenv("ALICE_TEST_UNSET")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple set", "token: ${ALICE_TEST_SET}", "token: hello"},
		{"simple unset stays", "token: ${ALICE_TEST_UNSET}", "token: ${ALICE_TEST_UNSET}"},
		{"default used", "token: ${ALICE_TEST_UNSET:-fallback}", "token: fallback"},
		{"default ignored when set", "token: ${ALICE_TEST_SET:-fallback}", "token: hello"},
		{"empty default", "token: ${ALICE_TEST_UNSET:-}", "token: "},
		{"bare var set", "token: $ALICE_TEST_SET", "token: hello"},
		{"bare var unset stays", "token: $ALICE_TEST_UNSET", "token: $ALICE_TEST_UNSET"},
		{"error marker", "token: ${ALICE_TEST_UNSET:?token required}", "token: ERROR:ALICE_TEST_UNSET:token required"},
		{"no reference", "token: literal", "token: literal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.in); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandEnvVarsWithValidation(t *testing.T) {
	os.Unsetenv("ALICE_TEST_UNSET")

	_, err := expandEnvVarsWithValidation("token: ${ALICE_TEST_UNSET:?telegram token required}")
	if err == nil {
		t.Fatal("expected error for unset required variable")
	}
	if !strings.Contains(err.Error(), "ALICE_TEST_UNSET") ||
		!strings.Contains(err.Error(), "telegram token required") {
		t.Errorf("error = %v", err)
	}

	t.Setenv("ALICE_TEST_SET", "ok")
	out, err := expandEnvVarsWithValidation("token: ${ALICE_TEST_SET:?unused}")
	if err != nil {
		t.Fatal(err)
	}
	if out != "token: ok" {
		t.Errorf("out = %q", out)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ALICE_TEST_TG_TOKEN", "tg-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
name: Loaded
worker:
  timeout_seconds: 45
channels:
  telegram:
    enabled: true
    token: ${ALICE_TEST_TG_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "Loaded" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Channels.Telegram.Token != "tg-secret" {
		t.Errorf("token = %q, want expanded secret", cfg.Channels.Telegram.Token)
	}
	if cfg.Worker.TimeoutSeconds != 45 {
		t.Errorf("timeout = %d", cfg.Worker.TimeoutSeconds)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("DISCORD_TOKEN", "dc-from-env")

	cfg := Default()
	cfg.Channels.Discord.Token = "${DISCORD_TOKEN}"
	resolveSecrets(cfg)

	if cfg.Worker.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", cfg.Worker.APIKey)
	}
	if cfg.Channels.Discord.Token != "dc-from-env" {
		t.Errorf("discord token = %q", cfg.Channels.Discord.Token)
	}
}

func TestResolveSecretsKeepsLiterals(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg := Default()
	cfg.Worker.APIKey = "sk-literal"
	resolveSecrets(cfg)

	if cfg.Worker.APIKey != "sk-literal" {
		t.Errorf("literal key overwritten: %q", cfg.Worker.APIKey)
	}
}

func TestIsEnvReference(t *testing.T) {
	t.Parallel()

	if !IsEnvReference("${TOKEN}") || !IsEnvReference("$TOKEN") {
		t.Error("references not detected")
	}
	if IsEnvReference("literal-token") || IsEnvReference("") {
		t.Error("literal misdetected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"telegram enabled without token", func(c *Config) { c.Channels.Telegram.Enabled = true }, "telegram.token"},
		{"discord enabled without token", func(c *Config) { c.Channels.Discord.Enabled = true }, "discord.token"},
		{"telegram enabled with token", func(c *Config) {
			c.Channels.Telegram.Enabled = true
			c.Channels.Telegram.Token = "abc"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	if found := FindConfigFile(); found != "" {
		t.Errorf("found %q in empty dir", found)
	}

	if err := os.WriteFile("alice.yaml", []byte("name: x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if found := FindConfigFile(); found != "alice.yaml" {
		t.Errorf("found = %q, want alice.yaml", found)
	}

	// config.yaml wins over alice.yaml.
	if err := os.WriteFile("config.yaml", []byte("name: y"), 0o600); err != nil {
		t.Fatal(err)
	}
	if found := FindConfigFile(); found != "config.yaml" {
		t.Errorf("found = %q, want config.yaml", found)
	}
}
