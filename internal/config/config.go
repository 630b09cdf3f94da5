package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes the authenticated document source.
type SourceConfig struct {
	AuthURL           string  `yaml:"auth_url"`
	APIURL            string  `yaml:"api_url"`
	Project           string  `yaml:"project"`
	UsernameEnv       string  `yaml:"username_env"`
	PasswordEnv       string  `yaml:"password_env"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffMillis     int     `yaml:"backoff_ms"`
	AuthTimeoutSecs   int     `yaml:"auth_timeout_secs"`
	FetchTimeoutSecs  int     `yaml:"fetch_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// IngestConfig configures the corpus ingestion job.
type IngestConfig struct {
	TitlesFile       string `yaml:"titles_file"`
	TitlesColumn     int    `yaml:"titles_column"`
	OutputFile       string `yaml:"output_file"`
	FailedFile       string `yaml:"failed_file"`
	Workers          int    `yaml:"workers"`
	WorkerMultiplier int    `yaml:"worker_multiplier"`
	Policy           string `yaml:"policy"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the generative model.
type GeneratorConfig struct {
	Type   string        `yaml:"type"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how records are split before indexing.
// Type "none" indexes each record as a single passage.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	Metric     string        `yaml:"metric"`
	SQLite     *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SQLiteConfig locates the on-disk vector database.
type SQLiteConfig struct {
	Dir string `yaml:"dir"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig controls how many neighbours are fetched and which survive.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// Cutoff is a pointer so an explicit 0 can be told apart from unset.
	Cutoff *float64 `yaml:"cutoff"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Source      SourceConfig      `yaml:"source"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/wikirag/config.yaml.
// If neither exists, it writes defaults to ~/.config/wikirag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and out-of-range values.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "ollama", "openai", "tfidf":
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	switch c.Generator.Type {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown generator: %q", c.Generator.Type)
	}
	switch c.VectorStore.Type {
	case "sqlite", "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("qdrant vector store requires vector_store.qdrant.url")
	}
	switch c.VectorStore.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("unknown metric: %q", c.VectorStore.Metric)
	}
	switch c.Chunker.Type {
	case "none", "sentence":
	default:
		return fmt.Errorf("unknown chunker: %q", c.Chunker.Type)
	}
	switch c.Ingest.Policy {
	case "first", "reject-ambiguous":
	default:
		return fmt.Errorf("unknown selection policy: %q", c.Ingest.Policy)
	}
	if c.Retrieval.Cutoff == nil {
		return errors.New("retrieval.cutoff is not set")
	}
	if cut := *c.Retrieval.Cutoff; cut <= 0 || cut > 1 {
		return fmt.Errorf("retrieval.cutoff must be within (0,1], got %v", cut)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Ingest.TitlesColumn < 0 {
		return fmt.Errorf("ingest.titles_column must not be negative, got %d", c.Ingest.TitlesColumn)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wikirag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	s := &cfg.Source
	if s.AuthURL == "" {
		s.AuthURL = "https://auth.enterprise.wikimedia.com/v1/login"
	}
	if s.APIURL == "" {
		s.APIURL = "https://api.enterprise.wikimedia.com/v2/structured-contents"
	}
	if s.Project == "" {
		s.Project = "enwiki"
	}
	if s.UsernameEnv == "" {
		s.UsernameEnv = "WIKI_API_USERNAME"
	}
	if s.PasswordEnv == "" {
		s.PasswordEnv = "WIKI_API_PASSWORD"
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 5
	}
	if s.BackoffMillis == 0 {
		s.BackoffMillis = 100
	}
	if s.AuthTimeoutSecs == 0 {
		s.AuthTimeoutSecs = 5
	}
	if s.FetchTimeoutSecs == 0 {
		s.FetchTimeoutSecs = 10
	}

	in := &cfg.Ingest
	if in.TitlesFile == "" {
		in.TitlesFile = filepath.Join("dataset", "titles_en.csv")
	}
	if in.TitlesColumn == 0 {
		in.TitlesColumn = 2
	}
	if in.OutputFile == "" {
		in.OutputFile = filepath.Join("dataset", "en.csv")
	}
	if in.WorkerMultiplier == 0 {
		in.WorkerMultiplier = 3
	}
	if in.Policy == "" {
		in.Policy = "first"
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Embedder.Ollama, "mxbai-embed-large", 30)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small", 30)
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	switch cfg.Generator.Type {
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Generator.Ollama, "llama3.1:8b", 300)
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini", 120)
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "none"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	vs := &cfg.VectorStore
	if vs.Type == "" {
		vs.Type = "sqlite"
	}
	if vs.Collection == "" {
		vs.Collection = "docs"
	}
	if vs.Metric == "" {
		vs.Metric = "l2"
	}
	if vs.Type == "sqlite" {
		if vs.SQLite == nil {
			vs.SQLite = &SQLiteConfig{}
		}
		if vs.SQLite.Dir == "" {
			vs.SQLite.Dir = filepath.Join("db", "data")
		}
	}
	if vs.Type == "qdrant" && vs.Qdrant != nil {
		if vs.Qdrant.APIKeyEnv == "" {
			vs.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if vs.Qdrant.TimeoutSecs == 0 {
			vs.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.Cutoff == nil {
		cutoff := 0.8
		cfg.Retrieval.Cutoff = &cutoff
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func ollamaDefaults(c *OllamaConfig, model string, timeout int) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeout
	}
}

func openAIDefaults(c *OpenAIConfig, model string, timeout int) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeout
	}
}
