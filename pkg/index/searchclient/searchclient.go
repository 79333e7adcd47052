// Package searchclient uploads chunk documents to a hosted search index
// over its REST API and runs security-trimmed hybrid queries against it.
package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spindexlabs/spindex/internal/models"
)

const (
	defaultAPIVersion = "2023-11-01"
	defaultBatchSize  = 100
)

// ClientConfig represents the configuration for the search index client.
type ClientConfig struct {
	Endpoint   string
	APIKey     string
	IndexName  string
	APIVersion string
	BatchSize  int
	HTTPClient *http.Client
}

type Client struct {
	config ClientConfig
	http   *http.Client
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}
	if config.IndexName == "" {
		return nil, fmt.Errorf("search index name is required")
	}
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		config: config,
		http:   httpClient,
	}, nil
}

// indexAction wraps a chunk document with the action the index should
// apply to it. mergeOrUpload makes re-ingestion idempotent per chunk id.
type indexAction struct {
	Action string `json:"@search.action"`
	models.ChunkDocument
}

type indexingResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

type indexingResponse struct {
	Value []indexingResult `json:"value"`
}

// Upload pushes documents to the index in batches. A partial failure
// reports the keys the index rejected.
func (c *Client) Upload(ctx context.Context, docs []models.ChunkDocument) error {
	for start := 0; start < len(docs); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := c.uploadBatch(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("uploading batch starting at %d: %w", start, err)
		}
	}
	return nil
}

func (c *Client) uploadBatch(ctx context.Context, docs []models.ChunkDocument) error {
	actions := make([]indexAction, len(docs))
	for i, doc := range docs {
		actions[i] = indexAction{
			Action:        "mergeOrUpload",
			ChunkDocument: doc,
		}
	}

	url := fmt.Sprintf("%s/indexes('%s')/docs/search.index?api-version=%s",
		strings.TrimRight(c.config.Endpoint, "/"), c.config.IndexName, c.config.APIVersion)

	body, status, err := c.post(ctx, url, map[string]any{"value": actions})
	if err != nil {
		return err
	}

	var response indexingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decoding index response: %w", err)
	}

	// 207 means some documents were rejected; surface their keys.
	if status == http.StatusMultiStatus {
		var failed []string
		for _, result := range response.Value {
			if !result.Status {
				failed = append(failed, fmt.Sprintf("%s (%s)", result.Key, result.ErrorMessage))
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("index rejected %d of %d documents: %s",
				len(failed), len(docs), strings.Join(failed, "; "))
		}
	}
	return nil
}

type searchRequest struct {
	Search        string        `json:"search,omitempty"`
	Filter        string        `json:"filter,omitempty"`
	Top           int           `json:"top"`
	VectorQueries []vectorQuery `json:"vectorQueries,omitempty"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchResponse struct {
	Value []models.ChunkDocument `json:"value"`
}

// Search runs a hybrid query, combining the text query with its embedding,
// trimmed to documents the caller's access label may see.
func (c *Client) Search(ctx context.Context, query string, embedding []float32, securityGroup string, limit int) ([]models.ChunkDocument, error) {
	if limit <= 0 {
		limit = 5
	}

	request := searchRequest{
		Search: query,
		Top:    limit,
	}
	if securityGroup != "" {
		request.Filter = fmt.Sprintf("security_group eq '%s'", securityGroup)
	}
	if len(embedding) > 0 {
		request.VectorQueries = []vectorQuery{{
			Kind:   "vector",
			Vector: embedding,
			Fields: "content_vector",
			K:      limit,
		}}
	}

	url := fmt.Sprintf("%s/indexes('%s')/docs/search?api-version=%s",
		strings.TrimRight(c.config.Endpoint, "/"), c.config.IndexName, c.config.APIVersion)

	body, _, err := c.post(ctx, url, request)
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return response.Value, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, resp.StatusCode, fmt.Errorf("search service returned status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close satisfies the indexer contract; the REST client holds no
// connections of its own.
func (c *Client) Close() {}
