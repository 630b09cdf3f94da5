package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wikirag/internal/corpus"
	"wikirag/internal/service"
)

var indexCorpus string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the vector collection from the corpus CSV",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the vector collection",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	indexCmd.Flags().StringVar(&indexCorpus, "corpus", "", "corpus CSV to index (default from config)")
	rootCmd.AddCommand(indexCmd, clearCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	path := appCfg.Ingest.OutputFile
	if indexCorpus != "" {
		path = indexCorpus
	}
	records, err := corpus.Load(path)
	if err != nil {
		return err
	}
	emb, err := buildEmbedder(appCfg)
	if err != nil {
		return err
	}
	ch, err := buildChunker(appCfg.Chunker)
	if err != nil {
		return err
	}
	idx, err := buildIndex(appCfg.VectorStore)
	if err != nil {
		return err
	}
	defer idx.Close()

	ix := service.NewIndexer(idx, emb, ch, appCfg.VectorStore.Collection, logger.Named("index"))
	rep, err := ix.Index(cmd.Context(), records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d passage(s) from %d record(s) into %q in %s.\n",
		rep.Passages, rep.Records, appCfg.VectorStore.Collection, rep.Duration.Round(time.Millisecond))
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	idx, err := buildIndex(appCfg.VectorStore)
	if err != nil {
		return err
	}
	defer idx.Close()

	existed, err := service.NewIndexer(idx, nil, nil, appCfg.VectorStore.Collection, logger).Clear(cmd.Context())
	if err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %q.\n", appCfg.VectorStore.Collection)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Collection %q does not exist.\n", appCfg.VectorStore.Collection)
	}
	return nil
}
