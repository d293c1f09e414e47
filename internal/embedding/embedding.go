// Package embedding abstracts the external sentence-embedding model. The
// engine treats it as an opaque, potentially slow, potentially failing
// dependency; every call takes a context so one stuck model call cannot
// block unrelated requests.
package embedding

import (
	"context"
	"fmt"
)

// Provider generates fixed-dimensionality vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures a provider.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds a Provider from config.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	}
	return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
}

// EmbedOne embeds a single text and returns its vector.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding: provider returned no vector")
	}
	return vecs[0], nil
}
