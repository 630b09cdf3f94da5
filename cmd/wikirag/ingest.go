package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wikirag/internal/corpus"
	"wikirag/internal/ingest"
	"wikirag/internal/normalizer"
)

var (
	ingestTitles  string
	ingestOut     string
	ingestFailed  string
	ingestWorkers int
	ingestLimit   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download the articles named in the titles file into the corpus CSV",
	Long: `Logs in once, fetches every title concurrently and writes one cleaned
record per article to the corpus file. Titles that could not be fetched are
reported and, with --failed, written to a titles file for a later re-run.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitles, "titles", "", "titles CSV (default from config)")
	ingestCmd.Flags().StringVarP(&ingestOut, "out", "o", "", "corpus CSV to write (default from config)")
	ingestCmd.Flags().StringVar(&ingestFailed, "failed", "", "write titles that failed to fetch to this file")
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "concurrent fetches (default from config)")
	ingestCmd.Flags().IntVarP(&ingestLimit, "limit", "n", 0, "only ingest the first N titles")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg := appCfg.Ingest
	if ingestTitles != "" {
		cfg.TitlesFile = ingestTitles
	}
	if ingestOut != "" {
		cfg.OutputFile = ingestOut
	}
	if ingestFailed != "" {
		cfg.FailedFile = ingestFailed
	}
	if ingestWorkers > 0 {
		cfg.Workers = ingestWorkers
	}

	ids, err := corpus.LoadTitles(cfg.TitlesFile, cfg.TitlesColumn)
	if err != nil {
		return err
	}
	if ingestLimit > 0 && ingestLimit < len(ids) {
		ids = ids[:ingestLimit]
	}
	creds, err := credentials(appCfg.Source)
	if err != nil {
		return err
	}
	policy, err := normalizer.PolicyByName(cfg.Policy)
	if err != nil {
		return err
	}

	pipeline := ingest.New(buildSource(appCfg.Source), normalizer.New(policy), ingest.Config{
		Workers:     workers(cfg),
		Credentials: creds,
		Logger:      logger.Named("ingest"),
	})
	rep, err := pipeline.Run(cmd.Context(), ids)
	if err != nil {
		return err
	}
	if err := corpus.Save(cfg.OutputFile, rep.Records); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Succeeded: %d/%d\n", rep.Succeeded(), rep.Requested)
	if len(rep.Dropped) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d title(s) with no usable article.\n", len(rep.Dropped))
	}
	if len(rep.Failed) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Failed to fetch %d title(s).\n", len(rep.Failed))
		if cfg.FailedFile != "" {
			if err := corpus.SaveTitles(cfg.FailedFile, rep.Failed, cfg.TitlesColumn); err != nil {
				return fmt.Errorf("write failed titles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-run them with: wikirag ingest --titles %s\n", cfg.FailedFile)
		}
	}
	logger.Debug("corpus written", zap.String("path", cfg.OutputFile), zap.String("job", rep.JobID))
	return nil
}
