package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	Endpoint   string // Azure OpenAI resource endpoint, or an OpenAI-compatible base URL
	APIKey     string
	Deployment string // Azure deployment name
	Model      string
	APIVersion string // Azure api-version; empty selects the plain OpenAI API
	MaxRetries int
	RetryDelay time.Duration
}

type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder maps chunk texts to vectors, retrying transient failures with
// bounded exponential backoff.
type Embedder struct {
	config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-ada-002"
	}
	if config.Deployment == "" {
		config.Deployment = config.Model
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 500 * time.Millisecond
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.Deployment),
	}
	if config.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(config.Endpoint))
	}
	if config.APIVersion != "" {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(config.APIVersion))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return &Embedder{
		config: config,
		client: client,
	}, nil
}

// EmbedTexts embeds a batch of chunk texts. The returned slice is aligned
// with the input.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, CalculateBackoff(e.config.RetryDelay, attempt)); err != nil {
				return nil, err
			}
		}

		embeddings, err := e.client.CreateEmbedding(ctx, texts)
		if err != nil {
			lastErr = err
			continue
		}
		if len(embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
				len(texts), len(embeddings))
		}
		return embeddings, nil
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", e.config.MaxRetries, lastErr)
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
