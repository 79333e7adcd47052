package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindexlabs/spindex/internal/models"
	"github.com/spindexlabs/spindex/pkg/extract"
	"github.com/spindexlabs/spindex/pkg/graph"
	"github.com/spindexlabs/spindex/pkg/pipeline"
	"github.com/spindexlabs/spindex/pkg/processor"
	"github.com/spindexlabs/spindex/pkg/security"
)

type stubEmbedder struct {
	texts []string
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	s.texts = append(s.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

type stubIndexer struct {
	uploaded []models.ChunkDocument

	searchQuery string
	searchGroup string
	results     []models.ChunkDocument
}

func (s *stubIndexer) Upload(ctx context.Context, docs []models.ChunkDocument) error {
	s.uploaded = append(s.uploaded, docs...)
	return nil
}

func (s *stubIndexer) Search(ctx context.Context, query string, embedding []float32, securityGroup string, limit int) ([]models.ChunkDocument, error) {
	s.searchQuery = query
	s.searchGroup = securityGroup
	return s.results, nil
}

func (s *stubIndexer) Close() {}

// graphFixture serves a two-folder drive with one text file in each and a
// single site page.
func graphFixture(t *testing.T) *graph.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/sites/contoso.sharepoint.com:/sites/docs:/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "site-1"})
	})
	mux.HandleFunc("/sites/site-1/drive", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "drive-1"})
	})

	mux.HandleFunc("/sites/site-1/drives/drive-1/root/children", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"id":     "d1",
					"name":   "Policies",
					"folder": map[string]interface{}{"childCount": 1},
				},
				map[string]interface{}{
					"id":     "f1",
					"name":   "notes.txt",
					"webUrl": "https://contoso.sharepoint.com/notes.txt",
					"file":   map[string]interface{}{"mimeType": "text/plain"},
				},
			},
		})
	})
	mux.HandleFunc("/sites/site-1/drives/drive-1/root:/Policies:/children", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"id":     "f2",
					"name":   "memo.txt",
					"webUrl": "https://contoso.sharepoint.com/Policies/memo.txt",
					"file":   map[string]interface{}{"mimeType": "text/plain"},
				},
			},
		})
	})

	mux.HandleFunc("/sites/site-1/drives/drive-1/root:/notes.txt:/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "General notes everyone can read.")
	})
	mux.HandleFunc("/sites/site-1/drives/drive-1/root:/Policies/memo.txt:/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Leadership memo with restricted access.")
	})

	mux.HandleFunc("/sites/site-1/drive/items/f1/permissions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"roles": []string{"read"},
					"grantedToIdentitiesV2": []interface{}{
						map[string]interface{}{"user": map[string]string{"id": "user-unknown"}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/sites/site-1/drive/items/f2/permissions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"roles": []string{"read"},
					"grantedToV2": map[string]interface{}{
						"siteGroup": map[string]string{"displayName": "Contoso Owners"},
					},
				},
			},
		})
	})

	mux.HandleFunc("/sites/site-1/pages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				map[string]string{"id": "page-1", "title": "Welcome", "webUrl": "https://contoso.sharepoint.com/SitePages/Welcome.aspx"},
			},
		})
	})
	mux.HandleFunc("/sites/site-1/pages/page-1/microsoft.graph.sitePage", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"canvasLayout": map[string]interface{}{
				"horizontalSections": []interface{}{
					map[string]interface{}{
						"columns": []interface{}{
							map[string]interface{}{
								"webparts": []interface{}{
									map[string]string{"innerHtml": "<p>Welcome to the intranet</p>"},
								},
							},
						},
					},
				},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := graph.NewWithConfig(context.Background(), graph.ClientConfig{
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		RateLimit:   100,
		FileFormats: []string{"txt"},
	})
	require.NoError(t, err)
	return client
}

func testManager() *security.Manager {
	return security.NewManager(map[string]string{
		"Contoso Owners": security.GroupCritical,
	}, security.GroupMedium)
}

func newPipeline(t *testing.T, indexer *stubIndexer, config pipeline.Config) *pipeline.Pipeline {
	t.Helper()

	config.SiteDomain = "contoso.sharepoint.com"
	config.SiteName = "docs"

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      100,
		ChunkOverlap:   20,
		MinChunkLength: 5,
	})

	return pipeline.New(graphFixture(t), extract.New(), &proc,
		&stubEmbedder{}, indexer, testManager(), config)
}

func TestIngest(t *testing.T) {
	indexer := &stubIndexer{}
	var events []pipeline.Event

	p := newPipeline(t, indexer, pipeline.Config{
		OnEvent: func(e pipeline.Event) { events = append(events, e) },
	})

	stats, err := p.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Folders)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 0, stats.Failed)

	require.Len(t, indexer.uploaded, 2)

	byID := make(map[string]models.ChunkDocument)
	for _, doc := range indexer.uploaded {
		byID[doc.ID] = doc
	}

	notes := byID["f1-0"]
	assert.Equal(t, "f1", notes.FileID)
	assert.Equal(t, "General notes everyone can read.", notes.Content)
	assert.Equal(t, []float32{1, 2, 3}, notes.ContentVector)
	assert.Equal(t, security.GroupMedium, notes.SecurityGroup)
	assert.Equal(t, "https://contoso.sharepoint.com/notes.txt", notes.Source)

	memo := byID["f2-0"]
	assert.Equal(t, security.GroupCritical, memo.SecurityGroup)

	var fileEvents int
	for _, e := range events {
		if e.Stage == "file" {
			fileEvents++
		}
	}
	assert.Equal(t, 2, fileEvents)
}

func TestIngestIncludesPages(t *testing.T) {
	indexer := &stubIndexer{}

	p := newPipeline(t, indexer, pipeline.Config{IncludePages: true})

	stats, err := p.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Pages)
	require.Len(t, indexer.uploaded, 3)

	var page models.ChunkDocument
	for _, doc := range indexer.uploaded {
		if doc.FileID == "page-1" {
			page = doc
		}
	}
	assert.Equal(t, "page-1-0", page.ID)
	assert.Contains(t, page.Content, "Welcome to the intranet")
}

func TestQuery(t *testing.T) {
	indexer := &stubIndexer{
		results: []models.ChunkDocument{{ID: "f1-0", Content: "General notes"}},
	}

	p := newPipeline(t, indexer, pipeline.Config{})

	results, err := p.Query(context.Background(), "notes", security.GroupMedium, 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "f1-0", results[0].ID)
	assert.Equal(t, "notes", indexer.searchQuery)
	assert.Equal(t, security.GroupMedium, indexer.searchGroup)
}
