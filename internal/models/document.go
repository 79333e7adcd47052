package models

import "fmt"

// FileDocument is one SharePoint drive item after download and text
// extraction, carrying the Graph metadata the index needs.
type FileDocument struct {
	ID             string
	Name           string
	FolderPath     string
	WebURL         string
	Size           int64
	Content        string
	CreatedBy      string
	LastModifiedBy string
	CreatedAt      string
	LastModifiedAt string
	ReadAccess     []string
}

// ChunkDocument is the unit uploaded to the search index: one window of a
// file's text plus its embedding and access-control label.
type ChunkDocument struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Content       string    `json:"content"`
	ContentVector []float32 `json:"content_vector,omitempty"`
	Source        string    `json:"source"`
	Name          string    `json:"name"`
	SecurityGroup string    `json:"security_group"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     string    `json:"created_datetime,omitempty"`
	LastModified  string    `json:"last_modified_datetime,omitempty"`
}

// ChunkID builds the index document key. Chunk ids are unique per file via
// <file_id>-<chunk_index>.
func ChunkID(fileID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", fileID, chunkIndex)
}

// Folder is one entry in the flat list produced by the folder crawler.
type Folder struct {
	ID        string
	Path      string
	ItemCount int
}

// DriveItem mirrors the subset of a Graph driveItem the pipeline reads.
type DriveItem struct {
	ID             string
	Name           string
	WebURL         string
	Size           int64
	IsFolder       bool
	ChildCount     int
	CreatedBy      string
	LastModifiedBy string
	CreatedAt      string
	LastModifiedAt string
}
