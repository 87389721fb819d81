package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-thread-digest/summarize"
)

func parse(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, RegisterFlags(cmd))
	RegisterIMAPFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(parse(t, "--state-dir", t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, summarize.BackendOpenAI, cfg.Backend)
	assert.Equal(t, 5, cfg.MessagesPerThread)
	assert.Equal(t, summarize.DefaultMaxLength, cfg.SummaryMaxLength)
	assert.Equal(t, summarize.DefaultMinLength, cfg.SummaryMinLength)

	backend := cfg.BackendConfig()
	assert.Equal(t, "sk-test", backend.OpenAI.APIKey)
	assert.Equal(t, summarize.DefaultHuggingFaceModel, backend.HuggingFace.Model)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log-level", "loud"}},
		{"bad log format", []string{"--log-format", "xml"}},
		{"bad backend", []string{"--backend", "gpt2"}},
		{"zero limit", []string{"--limit", "0"}},
		{"min above max", []string{"--max-len", "10", "--min-len", "20"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--state-dir", t.TempDir()}, tt.args...)
			_, err := LoadConfig(parse(t, args...))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_WarningAlias(t *testing.T) {
	cfg, err := LoadConfig(parse(t, "--state-dir", t.TempDir(), "--log-level", "WARNING", "--backend", "Extractive"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, summarize.BackendExtractive, cfg.Backend)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Setenv("HF_API_TOKEN", "")
	require.NoError(t, os.Unsetenv("HF_API_TOKEN"))

	envFile := filepath.Join(t.TempDir(), "digest.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HF_API_TOKEN=hf_from_file\n"), 0o600))

	cfg, err := LoadConfig(parse(t, "--state-dir", t.TempDir(), "--env-file", envFile, "--backend", "huggingface"))
	require.NoError(t, err)
	assert.Equal(t, "hf_from_file", cfg.HuggingFaceToken)

	_, err = LoadConfig(parse(t, "--state-dir", t.TempDir(), "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	assert.Error(t, err)
}

func TestLoadIMAPConfig(t *testing.T) {
	cfg, err := LoadIMAPConfig(parse(t))
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	_, err = LoadIMAPConfig(parse(t, "--imap-host", "imap.example.com"))
	assert.Error(t, err, "user required")

	t.Setenv("IMAP_PASS", "secret")
	cfg, err = LoadIMAPConfig(parse(t, "--imap-host", "imap.example.com", "--imap-user", "me@example.com"))
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "secret", cfg.Pass)
	assert.Equal(t, "Digests", cfg.TargetFolder)

	_, err = LoadIMAPConfig(parse(t, "--imap-host", "h", "--imap-user", "u", "--imap-port", "70000"))
	assert.Error(t, err)
}
