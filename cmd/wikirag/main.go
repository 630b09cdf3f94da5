package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wikirag/internal/config"
	"wikirag/internal/logging"
)

var (
	cfgPath string
	verbose bool

	appCfg *config.AppConfig
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "wikirag",
	Short: "Build a Wikipedia corpus and chat with it through a local LLM",
	Long: `wikirag downloads articles from the Wikimedia Enterprise API, stores them
as a CSV corpus, indexes them in a vector store and answers questions with
retrieval-augmented generation.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/wikirag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and extra output")
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if cfgPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err = logging.New(logging.Config{Level: appCfg.Log.Level, Format: appCfg.Log.Format, Verbose: verbose})
	if err != nil {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}
