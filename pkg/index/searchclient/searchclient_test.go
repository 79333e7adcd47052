package searchclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindexlabs/spindex/internal/models"
	"github.com/spindexlabs/spindex/pkg/index/searchclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, batchSize int) *searchclient.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := searchclient.NewWithConfig(searchclient.ClientConfig{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		IndexName:  "chunks",
		BatchSize:  batchSize,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return client
}

func testChunks(n int) []models.ChunkDocument {
	chunks := make([]models.ChunkDocument, n)
	for i := range chunks {
		chunks[i] = models.ChunkDocument{
			ID:            models.ChunkID("file-1", i),
			FileID:        "file-1",
			ChunkIndex:    i,
			Content:       "chunk content",
			SecurityGroup: "Group_medium",
		}
	}
	return chunks
}

func TestUpload(t *testing.T) {
	var received struct {
		Value []map[string]any `json:"value"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes('chunks')/docs/search.index", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Equal(t, "2023-11-01", r.URL.Query().Get("api-version"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}, 100)

	err := client.Upload(context.Background(), testChunks(2))
	require.NoError(t, err)

	require.Len(t, received.Value, 2)
	assert.Equal(t, "mergeOrUpload", received.Value[0]["@search.action"])
	assert.Equal(t, "file-1-0", received.Value[0]["id"])
	assert.Equal(t, "file-1-1", received.Value[1]["id"])
}

func TestUploadBatches(t *testing.T) {
	var batches [][]json.RawMessage

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Value []json.RawMessage `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		batches = append(batches, payload.Value)
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}, 2)

	err := client.Upload(context.Background(), testChunks(5))
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
}

func TestUploadPartialFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"key": "file-1-0", "status": true, "statusCode": 200},
				{"key": "file-1-1", "status": false, "statusCode": 422, "errorMessage": "bad vector"},
			},
		})
	}, 100)

	err := client.Upload(context.Background(), testChunks(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file-1-1")
	assert.Contains(t, err.Error(), "bad vector")
}

func TestUploadServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}, 100)

	err := client.Upload(context.Background(), testChunks(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestSearch(t *testing.T) {
	var request map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes('chunks')/docs/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "file-1-0", "content": "vacation policy", "security_group": "Group_medium"},
			},
		})
	}, 100)

	results, err := client.Search(context.Background(), "vacation", []float32{0.1, 0.2}, "Group_medium", 3)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "file-1-0", results[0].ID)
	assert.Equal(t, "vacation policy", results[0].Content)

	assert.Equal(t, "vacation", request["search"])
	assert.Equal(t, "security_group eq 'Group_medium'", request["filter"])
	assert.Equal(t, float64(3), request["top"])

	queries, ok := request["vectorQueries"].([]any)
	require.True(t, ok)
	require.Len(t, queries, 1)
	vq := queries[0].(map[string]any)
	assert.Equal(t, "vector", vq["kind"])
	assert.Equal(t, "content_vector", vq["fields"])
}

func TestSearchWithoutFilter(t *testing.T) {
	var request map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}, 100)

	_, err := client.Search(context.Background(), "query", nil, "", 5)
	require.NoError(t, err)

	_, hasFilter := request["filter"]
	assert.False(t, hasFilter)
	_, hasVectors := request["vectorQueries"]
	assert.False(t, hasVectors)
}
