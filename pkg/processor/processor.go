package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/spindexlabs/spindex/internal/models"
)

type ProcessorConfig struct {
	ChunkSize      int // window size in runes
	ChunkOverlap   int // runes shared between consecutive windows
	MinChunkLength int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}

	return Processor{
		config: config,
	}
}

// Chunk splits a file's text into overlapping fixed-size windows and maps
// each window to an index document carrying the file's metadata. Chunk ids
// are <file_id>-<chunk_index>.
func (p *Processor) Chunk(doc models.FileDocument) []models.ChunkDocument {
	text := p.cleanText(doc.Content)
	windows := p.splitIntoWindows(text)

	chunks := make([]models.ChunkDocument, 0, len(windows))
	for i, window := range windows {
		chunks = append(chunks, models.ChunkDocument{
			ID:           models.ChunkID(doc.ID, i),
			FileID:       doc.ID,
			ChunkIndex:   i,
			Content:      window,
			Source:       doc.WebURL,
			Name:         doc.Name,
			CreatedBy:    doc.CreatedBy,
			CreatedAt:    doc.CreatedAt,
			LastModified: doc.LastModifiedAt,
		})
	}

	return chunks
}

func (p *Processor) cleanText(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func (p *Processor) splitIntoWindows(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= p.config.ChunkSize {
		return []string{text}
	}

	step := p.config.ChunkSize - p.config.ChunkOverlap

	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + p.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		window := strings.TrimSpace(string(runes[start:end]))
		// The trailing window can be a sliver already covered by the
		// previous overlap.
		if len(windows) > 0 && utf8.RuneCountInString(window) < p.config.MinChunkLength {
			break
		}
		windows = append(windows, window)

		if end == len(runes) {
			break
		}
	}

	return windows
}
