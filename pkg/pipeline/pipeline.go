// Package pipeline wires the crawl, extract, chunk, embed and upload
// stages into one ingestion run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spindexlabs/spindex/internal/models"
	"github.com/spindexlabs/spindex/internal/types"
	"github.com/spindexlabs/spindex/pkg/extract"
	"github.com/spindexlabs/spindex/pkg/graph"
	"github.com/spindexlabs/spindex/pkg/security"
)

// Event reports progress from a running ingestion. Stage is one of crawl,
// file, page, skip or error.
type Event struct {
	Stage   string
	Path    string
	Message string
}

type Config struct {
	SiteDomain     string
	SiteName       string
	FolderPath     string
	IncludePages   bool
	EmbedBatchSize int
	OnEvent        func(Event)
}

// Stats summarizes an ingestion run.
type Stats struct {
	Folders int
	Files   int
	Pages   int
	Chunks  int
	Skipped int
	Failed  int
}

type Pipeline struct {
	graph    *graph.Client
	extract  types.Extractor
	chunker  types.Chunker
	embedder types.Embedder
	indexer  types.Indexer
	security *security.Manager
	config   Config
}

func New(client *graph.Client, extractor types.Extractor, chunker types.Chunker,
	embedder types.Embedder, indexer types.Indexer, manager *security.Manager,
	config Config) *Pipeline {

	if config.FolderPath == "" {
		config.FolderPath = "/"
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = 16
	}

	return &Pipeline{
		graph:    client,
		extract:  extractor,
		chunker:  chunker,
		embedder: embedder,
		indexer:  indexer,
		security: manager,
		config:   config,
	}
}

// Ingest crawls the configured folder tree and pushes every matching file
// through extraction, chunking, embedding and upload. A single bad file
// does not abort the run; failures are counted and reported as events.
func (p *Pipeline) Ingest(ctx context.Context) (*Stats, error) {
	siteID, err := p.graph.ResolveSiteID(ctx, p.config.SiteDomain, p.config.SiteName)
	if err != nil {
		return nil, fmt.Errorf("resolving site: %w", err)
	}
	driveID, err := p.graph.ResolveDriveID(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("resolving drive: %w", err)
	}

	folders, err := p.graph.CrawlFolders(ctx, siteID, driveID, p.config.FolderPath)
	if err != nil {
		return nil, fmt.Errorf("crawling folders: %w", err)
	}

	stats := &Stats{Folders: len(folders)}

	for _, folder := range folders {
		items, err := p.graph.ListChildren(ctx, siteID, driveID, folder.Path)
		if err != nil {
			stats.Failed++
			p.emit(Event{Stage: "error", Path: folder.Path, Message: err.Error()})
			continue
		}

		for _, item := range items {
			if item.IsFolder {
				continue
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			if err := p.ingestFile(ctx, siteID, driveID, folder.Path, item, stats); err != nil {
				if errors.Is(err, extract.ErrUnsupported) {
					stats.Skipped++
					p.emit(Event{Stage: "skip", Path: item.Name})
					continue
				}
				stats.Failed++
				p.emit(Event{Stage: "error", Path: item.Name, Message: err.Error()})
			}
		}
	}

	if p.config.IncludePages {
		if err := p.ingestPages(ctx, siteID, stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, siteID, driveID, folderPath string, item models.DriveItem, stats *Stats) error {
	data, err := p.graph.DownloadFile(ctx, siteID, driveID, folderPath, item.Name)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	text, err := p.extract.ExtractBytes(item.Name, data)
	if err != nil {
		return err
	}

	permissions, err := p.graph.FilePermissions(ctx, siteID, item.ID)
	if err != nil {
		return fmt.Errorf("reading permissions: %w", err)
	}

	doc := models.FileDocument{
		ID:             item.ID,
		Name:           item.Name,
		FolderPath:     folderPath,
		WebURL:         item.WebURL,
		Size:           item.Size,
		Content:        text,
		CreatedBy:      item.CreatedBy,
		LastModifiedBy: item.LastModifiedBy,
		CreatedAt:      item.CreatedAt,
		LastModifiedAt: item.LastModifiedAt,
		ReadAccess:     graph.ReadAccessEntities(permissions),
	}

	chunks, err := p.indexDocument(ctx, doc)
	if err != nil {
		return err
	}

	stats.Files++
	stats.Chunks += chunks
	p.emit(Event{Stage: "file", Path: item.Name, Message: fmt.Sprintf("%d chunks", chunks)})
	return nil
}

// ingestPages pulls the site's pages and feeds their rendered web parts
// through the same chunk and upload path as files.
func (p *Pipeline) ingestPages(ctx context.Context, siteID string, stats *Stats) error {
	pages, err := p.graph.SitePages(ctx, siteID)
	if err != nil {
		return fmt.Errorf("listing site pages: %w", err)
	}

	for _, page := range pages {
		html, err := p.graph.PageHTML(ctx, siteID, page.ID)
		if err != nil {
			stats.Failed++
			p.emit(Event{Stage: "error", Path: page.Title, Message: err.Error()})
			continue
		}

		text, err := p.extract.ExtractBytes(page.Title+".aspx", []byte(html))
		if err != nil {
			stats.Failed++
			p.emit(Event{Stage: "error", Path: page.Title, Message: err.Error()})
			continue
		}

		doc := models.FileDocument{
			ID:      page.ID,
			Name:    page.Title,
			WebURL:  page.WebURL,
			Content: text,
		}

		chunks, err := p.indexDocument(ctx, doc)
		if err != nil {
			stats.Failed++
			p.emit(Event{Stage: "error", Path: page.Title, Message: err.Error()})
			continue
		}

		stats.Pages++
		stats.Chunks += chunks
		p.emit(Event{Stage: "page", Path: page.Title, Message: fmt.Sprintf("%d chunks", chunks)})
	}

	return nil
}

// indexDocument chunks a document, embeds the chunks in batches and
// uploads them. Returns the number of chunks indexed.
func (p *Pipeline) indexDocument(ctx context.Context, doc models.FileDocument) (int, error) {
	chunks := p.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return 0, nil
	}

	group := p.security.ResolveGroup(doc.ReadAccess)
	for i := range chunks {
		chunks[i].SecurityGroup = group
	}

	for start := 0; start < len(chunks); start += p.config.EmbedBatchSize {
		end := start + p.config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding %s: %w", doc.Name, err)
		}
		for i := range batch {
			batch[i].ContentVector = vectors[i]
		}
	}

	if err := p.indexer.Upload(ctx, chunks); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", doc.Name, err)
	}
	return len(chunks), nil
}

// Query embeds the query text and runs a security-trimmed search against
// the index.
func (p *Pipeline) Query(ctx context.Context, query, securityGroup string, limit int) ([]models.ChunkDocument, error) {
	embedding, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return p.indexer.Search(ctx, query, embedding, securityGroup, limit)
}

func (p *Pipeline) emit(event Event) {
	if p.config.OnEvent != nil {
		p.config.OnEvent(event)
	}
}
