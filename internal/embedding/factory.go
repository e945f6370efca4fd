package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/config"
)

// New builds the embedder selected by cfg, wrapped in a content-hash cache when
// cfg.CacheSize is positive. apiKey is only used by the openai provider.
func New(cfg config.EmbeddingConfig, apiKey string, logger *zap.Logger) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case config.ProviderMock:
		inner = NewMockEmbedder(cfg.Dimensions)
	case config.ProviderOpenAI, "":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize <= 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize, logger)
}
