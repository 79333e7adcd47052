package types

import (
	"context"

	"github.com/spindexlabs/spindex/internal/models"
)

// Core interfaces
type Indexer interface {
	Upload(ctx context.Context, docs []models.ChunkDocument) error
	Search(ctx context.Context, query string, embedding []float32, securityGroup string, limit int) ([]models.ChunkDocument, error)
	Close()
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Extractor interface {
	ExtractBytes(name string, data []byte) (string, error)
}

type Chunker interface {
	Chunk(doc models.FileDocument) []models.ChunkDocument
}
