package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/spindexlabs/spindex/pkg/config"
	"github.com/spindexlabs/spindex/pkg/extract"
	"github.com/spindexlabs/spindex/pkg/graph"
	"github.com/spindexlabs/spindex/pkg/index/pgstore"
	"github.com/spindexlabs/spindex/pkg/index/searchclient"
	"github.com/spindexlabs/spindex/pkg/llm"
	"github.com/spindexlabs/spindex/pkg/pipeline"
	"github.com/spindexlabs/spindex/pkg/processor"
	"github.com/spindexlabs/spindex/pkg/security"
	"github.com/spindexlabs/spindex/server"

	itypes "github.com/spindexlabs/spindex/internal/types"
)

type flags struct {
	configPath string
	folder     string
	query      string
	group      string
	limit      int
	pages      bool
	serve      bool
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.folder, "folder", "", "Folder path to ingest, overrides the configured one")
	flag.StringVar(&f.query, "query", "", "Run a search instead of ingesting")
	flag.StringVar(&f.group, "group", "", "Access label to trim search results to")
	flag.IntVar(&f.limit, "limit", 5, "Maximum search results")
	flag.BoolVar(&f.pages, "pages", false, "Also ingest site pages")
	flag.BoolVar(&f.serve, "serve", false, "Start the WebSocket server")
	flag.Parse()

	return f
}

func run(f flags) error {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.folder != "" {
		cfg.Graph.FolderPath = f.folder
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	if f.serve {
		return server.Run(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, err := buildIndexer(ctx, cfg)
	if err != nil {
		return err
	}
	defer indexer.Close()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Deployment: cfg.Embedding.Deployment,
		Model:      cfg.Embedding.Model,
		APIVersion: cfg.Embedding.APIVersion,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: time.Duration(cfg.Embedding.RetryDelayMS) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	if f.query != "" {
		return runQuery(ctx, f, cfg, embedder, indexer)
	}
	return runIngest(ctx, f, cfg, embedder, indexer)
}

func buildIndexer(ctx context.Context, cfg *config.Config) (itypes.Indexer, error) {
	switch cfg.Index.Backend {
	case "postgres":
		return pgstore.NewWithConfig(ctx, pgstore.StoreConfig{
			ConnString: cfg.Index.DatabaseURL,
			TableName:  cfg.Index.TableName,
			VectorDim:  cfg.Index.VectorDim,
			BatchSize:  cfg.Index.BatchSize,
		})
	default:
		return searchclient.NewWithConfig(searchclient.ClientConfig{
			Endpoint:   cfg.Index.Endpoint,
			APIKey:     cfg.Index.APIKey,
			IndexName:  cfg.Index.IndexName,
			APIVersion: cfg.Index.APIVersion,
			BatchSize:  cfg.Index.BatchSize,
		})
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, embedder itypes.Embedder,
	indexer itypes.Indexer, includePages bool, onEvent func(pipeline.Event)) (*pipeline.Pipeline, error) {

	client, err := graph.NewWithConfig(ctx, graph.ClientConfig{
		TenantID:      cfg.Graph.TenantID,
		ClientID:      cfg.Graph.ClientID,
		ClientSecret:  cfg.Graph.ClientSecret,
		RateLimit:     cfg.Graph.RateLimit,
		FileFormats:   cfg.Graph.FileFormats,
		ModifiedSince: time.Duration(cfg.Graph.ModifiedSinceMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph client: %w", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		MinChunkLength: cfg.Processor.MinChunkLength,
	})

	manager := security.NewManager(cfg.Security.GroupMapping, cfg.Security.DefaultGroup)

	return pipeline.New(client, extract.New(), &proc, embedder, indexer, manager, pipeline.Config{
		SiteDomain:   cfg.Graph.SiteDomain,
		SiteName:     cfg.Graph.SiteName,
		FolderPath:   cfg.Graph.FolderPath,
		IncludePages: includePages,
		OnEvent:      onEvent,
	}), nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func runIngest(ctx context.Context, f flags, cfg *config.Config, embedder itypes.Embedder, indexer itypes.Indexer) error {
	color.Blue("\nIngesting %s/sites/%s%s\n", cfg.Graph.SiteDomain, cfg.Graph.SiteName, cfg.Graph.FolderPath)

	bar := getSpinner("Crawling document library...")

	onEvent := func(e pipeline.Event) {
		bar.Add(1)
		switch e.Stage {
		case "file", "page":
			bar.Describe(color.CyanString("Indexed %s (%s)", e.Path, e.Message))
		case "skip":
			bar.Describe(color.YellowString("Skipped %s", e.Path))
		case "error":
			color.Red("\n%s: %s", e.Path, e.Message)
		}
	}

	p, err := buildPipeline(ctx, cfg, embedder, indexer, f.pages, onEvent)
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := p.Ingest(ctx)
	bar.Finish()
	if err != nil {
		return err
	}

	color.Green("\n✓ Indexed %d chunks from %d files and %d pages across %d folders in %s",
		stats.Chunks, stats.Files, stats.Pages, stats.Folders, time.Since(start).Round(time.Second))
	if stats.Skipped > 0 {
		color.Yellow("  %d files skipped (unsupported format)", stats.Skipped)
	}
	if stats.Failed > 0 {
		color.Red("  %d files failed", stats.Failed)
	}
	return nil
}

func runQuery(ctx context.Context, f flags, cfg *config.Config, embedder itypes.Embedder, indexer itypes.Indexer) error {
	p, err := buildPipeline(ctx, cfg, embedder, indexer, false, nil)
	if err != nil {
		return err
	}

	spinner := getSpinner("Searching index...")
	results, err := p.Query(ctx, f.query, f.group, f.limit)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	if len(results) == 0 {
		color.Yellow("No results")
		return nil
	}

	for i, doc := range results {
		color.Cyan("\n%d. %s (chunk %d, %s)", i+1, doc.Name, doc.ChunkIndex, doc.SecurityGroup)
		color.Blue("   %s", doc.Source)
		fmt.Printf("   %s\n", doc.Content)
	}
	return nil
}
