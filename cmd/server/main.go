package main

import (
	"context"
	"fmt"
	"os"

	"github.com/RichardoC/padi-gateway/internal/chat"
	"github.com/RichardoC/padi-gateway/internal/config"
	"github.com/RichardoC/padi-gateway/internal/llm"
	"github.com/RichardoC/padi-gateway/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "padi-gateway",
		Short:         "Chat gateway relaying prompts to a hosted LLM with per-user history",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags())
		},
	}
	addServeFlags(rootCmd)
	rootCmd.AddCommand(newServeCmd(), newAskCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags())
		},
	}
	addServeFlags(cmd)
	return cmd
}

// Flag names match the config keys so viper binds them over the environment.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("port", "3000", "listen port (env PORT)")
	cmd.Flags().String("database-path", "pad-i.db", "sqlite database path (env DATABASE_PATH)")
}

func newAskCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt to the configured completion provider and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(config.LoadCompletion, nil)
			if err != nil {
				return err
			}
			defer logger.Sync()

			completer, err := newCompleter(cmd.Context(), cfg)
			if err != nil {
				logger.Error("failed to initialize completion client", zap.Error(err))
				return err
			}
			if model == "" {
				model = cfg.DefaultModel
			}

			completion, err := completer.Complete(cmd.Context(), model, args[0])
			if err != nil {
				logger.Error("failed to generate completion", zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), completion)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name (defaults to DEFAULT_MODEL)")
	return cmd
}

// bootstrap loads configuration and builds the logger. A configuration error
// is fatal for every subcommand.
func bootstrap(load func(*pflag.FlagSet) (config.Config, error), flags *pflag.FlagSet) (config.Config, *zap.Logger, error) {
	cfg, err := load(flags)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newCompleter(ctx context.Context, cfg config.Config) (chat.Completer, error) {
	switch cfg.CompletionProvider {
	case config.ProviderGenAI:
		return llm.NewGenAIClient(ctx, cfg.GeminiAPIKey)
	case config.ProviderOpenAI:
		return llm.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.DefaultModel)
	default:
		return llm.NewGoogleAI(ctx, cfg.GeminiAPIKey, cfg.DefaultModel)
	}
}
