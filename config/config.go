package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/summarize"
)

// Config captures the options shared by every command.
type Config struct {
	LogLevel  string
	LogFormat string
	LogDir    string
	EnvFile   string
	StateDir  string

	Backend           string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	HuggingFaceURL    string
	HuggingFaceModel  string
	HuggingFaceToken  string
	MessagesPerThread int
	SummaryMaxLength  int
	SummaryMinLength  int
}

// IMAPConfig holds the optional digest delivery settings of the batch command.
type IMAPConfig struct {
	Enabled            bool
	Host               string
	Port               int
	User               string
	Pass               string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	From               string
	To                 string
}

// RegisterFlags attaches the shared flags to the root command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json, pretty")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("env-file", "", "Load environment variables from this file (defaults to .env when present)")
	flags.String("state-dir", defaultStateDir, "Directory for the summary store")
	flags.String("backend", summarize.BackendOpenAI, "Summarizer backend: openai, huggingface, extractive")
	flags.String("openai-base-url", "", "Base URL of an OpenAI-compatible API")
	flags.String("openai-model", summarize.DefaultOpenAIModel, "Chat model used by the openai backend")
	flags.String("hf-endpoint", summarize.DefaultHuggingFaceEndpoint, "Hugging Face inference endpoint")
	flags.String("hf-model", summarize.DefaultHuggingFaceModel, "Summarization model used by the huggingface backend")
	flags.Int("limit", 5, "Messages selected per thread")
	flags.Int("max-len", summarize.DefaultMaxLength, "Maximum summary length")
	flags.Int("min-len", summarize.DefaultMinLength, "Minimum summary length")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	backend, err := flags.GetString("backend")
	if err != nil {
		return Config{}, err
	}
	openAIBaseURL, err := flags.GetString("openai-base-url")
	if err != nil {
		return Config{}, err
	}
	openAIModel, err := flags.GetString("openai-model")
	if err != nil {
		return Config{}, err
	}
	hfEndpoint, err := flags.GetString("hf-endpoint")
	if err != nil {
		return Config{}, err
	}
	hfModel, err := flags.GetString("hf-model")
	if err != nil {
		return Config{}, err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return Config{}, err
	}
	maxLen, err := flags.GetInt("max-len")
	if err != nil {
		return Config{}, err
	}
	minLen, err := flags.GetInt("min-len")
	if err != nil {
		return Config{}, err
	}

	if err := loadEnv(envFile); err != nil {
		return Config{}, err
	}

	if stateDir == "" {
		stateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		LogLevel:          logLevel,
		LogFormat:         strings.ToLower(logFormat),
		LogDir:            logDir,
		EnvFile:           envFile,
		StateDir:          filepath.Clean(stateDir),
		Backend:           strings.ToLower(backend),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     openAIBaseURL,
		OpenAIModel:       openAIModel,
		HuggingFaceURL:    hfEndpoint,
		HuggingFaceModel:  hfModel,
		HuggingFaceToken:  os.Getenv("HF_API_TOKEN"),
		MessagesPerThread: limit,
		SummaryMaxLength:  maxLen,
		SummaryMinLength:  minLen,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("invalid --log-format: %s", cfg.LogFormat)
	}

	switch cfg.Backend {
	case summarize.BackendOpenAI, summarize.BackendHuggingFace, summarize.BackendExtractive:
	default:
		return fmt.Errorf("invalid --backend: %s", cfg.Backend)
	}

	if cfg.MessagesPerThread <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	if cfg.SummaryMaxLength <= 0 {
		return fmt.Errorf("--max-len must be positive")
	}
	if cfg.SummaryMinLength < 0 || cfg.SummaryMinLength > cfg.SummaryMaxLength {
		return fmt.Errorf("--min-len must be between 0 and --max-len")
	}

	return nil
}

// BackendConfig maps the config onto the summarizer factory settings.
// Missing credentials are reported when the summarizer is first used.
func (c Config) BackendConfig() summarize.BackendConfig {
	return summarize.BackendConfig{
		Name: c.Backend,
		OpenAI: summarize.OpenAIConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: c.OpenAIBaseURL,
			Model:   c.OpenAIModel,
		},
		HuggingFace: summarize.HuggingFaceConfig{
			Endpoint: c.HuggingFaceURL,
			Model:    c.HuggingFaceModel,
			Token:    c.HuggingFaceToken,
		},
	}
}

// loadEnv reads an explicit env file, or .env in the working directory when
// it exists. Variables already set in the environment win.
func loadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// RegisterIMAPFlags attaches the digest delivery flags to cmd.
func RegisterIMAPFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("imap-host", "", "IMAP server hostname; enables digest delivery")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "Digests", "IMAP folder receiving digest emails")
	flags.String("digest-from", "", "From address of digest emails (defaults to --imap-user)")
	flags.String("digest-to", "", "To address of digest emails (defaults to the From address)")
}

// LoadIMAPConfig reads the delivery flags. Delivery stays disabled without
// --imap-host.
func LoadIMAPConfig(cmd *cobra.Command) (IMAPConfig, error) {
	flags := cmd.Flags()

	host, err := flags.GetString("imap-host")
	if err != nil {
		return IMAPConfig{}, err
	}
	port, err := flags.GetInt("imap-port")
	if err != nil {
		return IMAPConfig{}, err
	}
	user, err := flags.GetString("imap-user")
	if err != nil {
		return IMAPConfig{}, err
	}
	pass, err := flags.GetString("imap-pass")
	if err != nil {
		return IMAPConfig{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return IMAPConfig{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return IMAPConfig{}, err
	}
	targetFolder, err := flags.GetString("target-folder")
	if err != nil {
		return IMAPConfig{}, err
	}
	from, err := flags.GetString("digest-from")
	if err != nil {
		return IMAPConfig{}, err
	}
	to, err := flags.GetString("digest-to")
	if err != nil {
		return IMAPConfig{}, err
	}

	if pass == "" {
		pass = os.Getenv("IMAP_PASS")
	}

	cfg := IMAPConfig{
		Enabled:            host != "",
		Host:               host,
		Port:               port,
		User:               user,
		Pass:               pass,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecureSkipVerify,
		TargetFolder:       targetFolder,
		From:               from,
		To:                 to,
	}

	if err := validateIMAPConfig(cfg); err != nil {
		return IMAPConfig{}, err
	}
	return cfg, nil
}

func validateIMAPConfig(cfg IMAPConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.User == "" {
		return fmt.Errorf("--imap-user is required with --imap-host")
	}
	if cfg.Pass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".thread-digest", "state"), nil
}
