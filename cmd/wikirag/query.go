package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wikirag/internal/service"
	"wikirag/internal/summarizer"
	"wikirag/internal/tui"
)

var (
	queryText string
	queryDB   bool
	chatRAG   bool
)

var separator = strings.Repeat("_", 32)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer one prompt, optionally grounded on the indexed corpus",
	Args:  cobra.NoArgs,
	RunE:  runQuery,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with an optional RAG toggle",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	queryCmd.Flags().StringVar(&queryText, "text", "", "prompt text")
	queryCmd.Flags().BoolVar(&queryDB, "db", false, "ground the answer on the vector index")
	_ = queryCmd.MarkFlagRequired("text")
	chatCmd.Flags().BoolVar(&chatRAG, "rag", false, "start with RAG assist enabled")
	rootCmd.AddCommand(queryCmd, chatCmd)
}

func buildRAGService() (*service.RAGService, func() error, error) {
	emb, err := buildEmbedder(appCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := prepareForQuery(appCfg, emb); err != nil {
		return nil, nil, err
	}
	gen, err := buildGenerator(appCfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := buildIndex(appCfg.VectorStore)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewRAGService(idx, emb, gen, service.Config{
		Collection: appCfg.VectorStore.Collection,
		TopK:       appCfg.Retrieval.TopK,
		Cutoff:     *appCfg.Retrieval.Cutoff,
		Logger:     logger.Named("rag"),
	})
	return svc, idx.Close, nil
}

func runQuery(cmd *cobra.Command, _ []string) error {
	svc, closeIndex, err := buildRAGService()
	if err != nil {
		return err
	}
	defer closeIndex()

	res, err := svc.AnswerDetailed(cmd.Context(), queryText, queryDB)
	if err != nil {
		return err
	}
	if verbose && queryDB {
		fmt.Fprintln(cmd.OutOrStdout(), "Relevant documents...")
		for _, p := range res.Context.Passages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  Similarity: %.2f\n    %s\n", p.Hit.ID, p.Score,
				summarizer.Truncate(summarizer.Summarize(p.Hit.Text, 1), 160))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n%s\n%s\n\n", separator, res.Answer, separator)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	svc, closeIndex, err := buildRAGService()
	if err != nil {
		return err
	}
	defer closeIndex()

	timeout := seconds(generatorTimeoutSecs())
	m := tui.New(svc, chatRAG, timeout)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}

// generatorTimeoutSecs bounds a whole chat turn by the generator's timeout
// plus headroom for retrieval.
func generatorTimeoutSecs() int {
	switch {
	case appCfg.Generator.Ollama != nil && appCfg.Generator.Type == "ollama":
		return appCfg.Generator.Ollama.TimeoutSecs + 30
	case appCfg.Generator.OpenAI != nil && appCfg.Generator.Type == "openai":
		return appCfg.Generator.OpenAI.TimeoutSecs + 30
	}
	return 0
}
