package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/padi-gateway/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderGenAI    = "genai"
	ProviderOpenAI   = "openai"
)

type Config struct {
	Port string

	CompletionProvider string
	GeminiAPIKey       string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	DefaultModel       string

	SupabaseURL     string
	SupabaseAnonKey string
	DatabasePath    string

	HistoryLimit       int
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string

	LogLevel       string
	LogDevelopment bool
}

// Keys are read from flags first, then from the environment with dashes
// mapped to underscores ("gemini-api-key" -> GEMINI_API_KEY).
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "3000")
	v.SetDefault("completion-provider", ProviderGoogleAI)
	v.SetDefault("openai-base-url", "https://api.openai.com/v1/")
	v.SetDefault("default-model", models.DefaultModel)
	v.SetDefault("database-path", "pad-i.db")
	v.SetDefault("history-limit", 20)
	v.SetDefault("request-timeout", 30*time.Second)
	v.SetDefault("cors-allowed-origins", "*")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-development", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	return v, nil
}

// Load reads the full server configuration. Missing credentials, missing store
// connection parameters and malformed values are reported together.
func Load(flags *pflag.FlagSet) (Config, error) {
	return load(flags, true)
}

// LoadCompletion reads the configuration needed to talk to the completion
// provider only; identity and store settings are not required.
func LoadCompletion(flags *pflag.FlagSet) (Config, error) {
	return load(flags, false)
}

func load(flags *pflag.FlagSet, requireServer bool) (Config, error) {
	v, err := newViper(flags)
	if err != nil {
		return Config{}, err
	}

	var problems []string

	historyLimit, err := cast.ToIntE(v.Get("history-limit"))
	if err != nil || historyLimit <= 0 {
		problems = append(problems, fmt.Sprintf("HISTORY_LIMIT must be a positive integer, got %q", v.GetString("history-limit")))
	}
	requestTimeout, err := cast.ToDurationE(v.Get("request-timeout"))
	if err != nil || requestTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("REQUEST_TIMEOUT must be a positive duration, got %q", v.GetString("request-timeout")))
	}
	logDevelopment, err := cast.ToBoolE(v.Get("log-development"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("LOG_DEVELOPMENT must be a boolean, got %q", v.GetString("log-development")))
	}

	cfg := Config{
		Port:               v.GetString("port"),
		CompletionProvider: strings.ToLower(v.GetString("completion-provider")),
		GeminiAPIKey:       v.GetString("gemini-api-key"),
		OpenAIAPIKey:       v.GetString("openai-api-key"),
		OpenAIBaseURL:      v.GetString("openai-base-url"),
		DefaultModel:       v.GetString("default-model"),
		SupabaseURL:        v.GetString("supabase-url"),
		SupabaseAnonKey:    v.GetString("supabase-anon-key"),
		DatabasePath:       v.GetString("database-path"),
		HistoryLimit:       historyLimit,
		RequestTimeout:     requestTimeout,
		CORSAllowedOrigins: splitList(v.GetString("cors-allowed-origins")),
		LogLevel:           v.GetString("log-level"),
		LogDevelopment:     logDevelopment,
	}

	var missing []string
	switch cfg.CompletionProvider {
	case ProviderGoogleAI, ProviderGenAI:
		if cfg.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown COMPLETION_PROVIDER %q", cfg.CompletionProvider))
	}
	if requireServer {
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		if strings.TrimSpace(cfg.DatabasePath) == "" {
			missing = append(missing, "DATABASE_PATH")
		}
	}
	if len(missing) > 0 {
		problems = append([]string{"missing required environment: " + strings.Join(missing, ", ")}, problems...)
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

// CompletionConfigured reports whether a completion credential is present.
func (c Config) CompletionConfigured() bool {
	if c.CompletionProvider == ProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.GeminiAPIKey != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
