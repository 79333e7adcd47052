package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindexlabs/spindex/internal/models"
	"github.com/spindexlabs/spindex/pkg/index/pgstore"
)

func getTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := pgstore.NewWithConfig(context.Background(), pgstore.StoreConfig{
		ConnString: connString,
		TableName:  "test_chunks",
		VectorDim:  3,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestUploadAndSearch(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	docs := []models.ChunkDocument{
		{
			ID:            models.ChunkID("file-1", 0),
			FileID:        "file-1",
			ChunkIndex:    0,
			Content:       "vacation policy details",
			ContentVector: []float32{1, 0, 0},
			Source:        "https://contoso.sharepoint.com/policy.docx",
			Name:          "policy.docx",
			SecurityGroup: "Group_medium",
		},
		{
			ID:            models.ChunkID("file-1", 1),
			FileID:        "file-1",
			ChunkIndex:    1,
			Content:       "expense reporting",
			ContentVector: []float32{0, 1, 0},
			Source:        "https://contoso.sharepoint.com/policy.docx",
			Name:          "policy.docx",
			SecurityGroup: "Group_critical",
		},
	}

	require.NoError(t, s.Upload(ctx, docs))

	// Re-uploading the same ids must not error or duplicate.
	require.NoError(t, s.Upload(ctx, docs))

	results, err := s.Search(ctx, "", []float32{1, 0, 0}, "", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "file-1-0", results[0].ID)
	assert.Equal(t, "vacation policy details", results[0].Content)

	trimmed, err := s.Search(ctx, "", []float32{1, 0, 0}, "Group_medium", 5)
	require.NoError(t, err)
	require.Len(t, trimmed, 1)
	assert.Equal(t, "Group_medium", trimmed[0].SecurityGroup)
}
