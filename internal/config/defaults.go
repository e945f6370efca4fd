package config

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Index.Root == "" {
		cfg.Index.Root = "."
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = []string{".ts", ".tsx", ".js", ".jsx"}
	}
	if cfg.Index.MaxFileSize == 0 {
		cfg.Index.MaxFileSize = 1 << 20
	}
	if cfg.Index.MinChunkLines == 0 {
		cfg.Index.MinChunkLines = 3
	}
	if cfg.Index.MaxChunkLines == 0 {
		cfg.Index.MaxChunkLines = 80
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./.semdup"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 10
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.85
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
}
