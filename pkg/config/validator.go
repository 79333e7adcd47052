package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Graph config
	for field, value := range map[string]string{
		"graph.tenant_id":     c.Graph.TenantID,
		"graph.client_id":     c.Graph.ClientID,
		"graph.client_secret": c.Graph.ClientSecret,
		"graph.site_domain":   c.Graph.SiteDomain,
		"graph.site_name":     c.Graph.SiteName,
	} {
		if value == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "required for Microsoft Graph authentication",
			})
		}
	}

	if c.Graph.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "graph.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Graph.FolderPath != "" && !strings.HasPrefix(c.Graph.FolderPath, "/") {
		errors = append(errors, ValidationError{
			Field:   "graph.folder_path",
			Message: "folder_path must start with '/'",
		})
	}

	for _, format := range c.Graph.FileFormats {
		if strings.HasPrefix(format, ".") || format == "" {
			errors = append(errors, ValidationError{
				Field:   "graph.file_formats",
				Message: fmt.Sprintf("formats are given without dots, got: %q", format),
			})
		}
	}

	// Validate Embedding config
	if c.Embedding.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.endpoint",
			Message: "embedding endpoint is required",
		})
	} else if _, err := url.Parse(c.Embedding.Endpoint); err != nil {
		errors = append(errors, ValidationError{
			Field:   "embedding.endpoint",
			Message: "invalid embedding endpoint URL",
		})
	}

	if c.Embedding.MaxRetries < 1 || c.Embedding.MaxRetries > 10 {
		errors = append(errors, ValidationError{
			Field:   "embedding.max_retries",
			Message: "max_retries must be between 1 and 10",
		})
	}

	// Validate Index config
	switch c.Index.Backend {
	case "search":
		if c.Index.Endpoint == "" {
			errors = append(errors, ValidationError{
				Field:   "index.endpoint",
				Message: "endpoint is required for the search backend",
			})
		}
		if c.Index.IndexName == "" {
			errors = append(errors, ValidationError{
				Field:   "index.index_name",
				Message: "index_name is required for the search backend",
			})
		}
	case "postgres":
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "database_url is required for the postgres backend",
			})
		}
		if c.Index.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "index.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("backend must be 'search' or 'postgres', got %q", c.Index.Backend),
		})
	}

	if c.Index.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	return errors
}
