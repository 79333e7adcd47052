package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spindexlabs/spindex/internal/models"
)

type identitySet struct {
	User struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

type driveItemPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
	Size   int64  `json:"size"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	FileSystemInfo struct {
		CreatedDateTime      string `json:"createdDateTime"`
		LastModifiedDateTime string `json:"lastModifiedDateTime"`
	} `json:"fileSystemInfo"`
	CreatedBy      identitySet `json:"createdBy"`
	LastModifiedBy identitySet `json:"lastModifiedBy"`
}

type childrenResponse struct {
	Value    []driveItemPayload `json:"value"`
	NextLink string             `json:"@odata.nextLink"`
}

// ResolveSiteID looks up the Graph site id for a site addressed by domain
// and name, e.g. ("contoso.sharepoint.com", "Engineering").
func (c *Client) ResolveSiteID(ctx context.Context, siteDomain, siteName string) (string, error) {
	url := fmt.Sprintf("%s/sites/%s:/sites/%s:/", c.config.BaseURL, siteDomain, siteName)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, url, &result); err != nil {
		return "", fmt.Errorf("resolving site id: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("site %s/%s not found", siteDomain, siteName)
	}
	return result.ID, nil
}

// ResolveDriveID returns the id of the site's default document library.
func (c *Client) ResolveDriveID(ctx context.Context, siteID string) (string, error) {
	url := fmt.Sprintf("%s/sites/%s/drive", c.config.BaseURL, siteID)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, url, &result); err != nil {
		return "", fmt.Errorf("resolving drive id: %w", err)
	}
	return result.ID, nil
}

func (c *Client) childrenURL(siteID, driveID, folderPath string) string {
	if folderPath == "" || folderPath == "/" {
		return fmt.Sprintf("%s/sites/%s/drives/%s/root/children", c.config.BaseURL, siteID, driveID)
	}
	return fmt.Sprintf("%s/sites/%s/drives/%s/root:%s:/children",
		c.config.BaseURL, siteID, driveID, strings.TrimSuffix(folderPath, "/"))
}

// ListChildren lists one folder's items, following @odata.nextLink until
// the listing is exhausted. File items are filtered by the configured
// extensions and modification window; folders always pass.
func (c *Client) ListChildren(ctx context.Context, siteID, driveID, folderPath string) ([]models.DriveItem, error) {
	var items []models.DriveItem

	url := c.childrenURL(siteID, driveID, folderPath)
	for url != "" {
		var page childrenResponse
		if err := c.get(ctx, url, &page); err != nil {
			return nil, fmt.Errorf("listing children of %q: %w", folderPath, err)
		}

		for _, payload := range page.Value {
			item := toDriveItem(payload)
			if !item.IsFolder && !c.keepFile(item) {
				continue
			}
			items = append(items, item)
		}
		url = page.NextLink
	}

	return items, nil
}

func toDriveItem(payload driveItemPayload) models.DriveItem {
	item := models.DriveItem{
		ID:             payload.ID,
		Name:           payload.Name,
		WebURL:         payload.WebURL,
		Size:           payload.Size,
		IsFolder:       payload.Folder != nil,
		CreatedBy:      payload.CreatedBy.User.DisplayName,
		LastModifiedBy: payload.LastModifiedBy.User.DisplayName,
		CreatedAt:      normalizeGraphTime(payload.FileSystemInfo.CreatedDateTime),
		LastModifiedAt: normalizeGraphTime(payload.FileSystemInfo.LastModifiedDateTime),
	}
	if payload.Folder != nil {
		item.ChildCount = payload.Folder.ChildCount
	}
	return item
}

// keepFile applies the extension filter and the modified-since window. A
// file passes the window when either its created or its last-modified
// timestamp falls inside it.
func (c *Client) keepFile(item models.DriveItem) bool {
	if len(c.config.FileFormats) > 0 {
		matched := false
		for _, format := range c.config.FileFormats {
			if strings.HasSuffix(strings.ToLower(item.Name), "."+strings.ToLower(format)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if c.config.ModifiedSince == 0 {
		return true
	}

	limit := time.Now().UTC().Add(-c.config.ModifiedSince)
	return graphTimeAfter(item.CreatedAt, limit) || graphTimeAfter(item.LastModifiedAt, limit)
}

func graphTimeAfter(value string, limit time.Time) bool {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return false
	}
	return !t.Before(limit)
}

// CrawlFolders walks the drive tree under rootPath and returns the flat
// list of folder paths, rootPath included.
func (c *Client) CrawlFolders(ctx context.Context, siteID, driveID, rootPath string) ([]models.Folder, error) {
	if rootPath == "" {
		rootPath = "/"
	}

	visited := make(map[string]bool)
	folders := []models.Folder{{Path: rootPath}}

	if err := c.crawlRecursive(ctx, siteID, driveID, rootPath, visited, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) crawlRecursive(ctx context.Context, siteID, driveID, path string, visited map[string]bool, folders *[]models.Folder) error {
	if visited[path] {
		return nil
	}
	visited[path] = true

	if c.config.OnProgress != nil {
		c.config.OnProgress(path)
	}

	items, err := c.ListChildren(ctx, siteID, driveID, path)
	if err != nil {
		return err
	}

	for _, item := range items {
		if !item.IsFolder {
			continue
		}
		childPath := joinFolderPath(path, item.Name)
		*folders = append(*folders, models.Folder{
			ID:        item.ID,
			Path:      childPath,
			ItemCount: item.ChildCount,
		})
		if err := c.crawlRecursive(ctx, siteID, driveID, childPath, visited, folders); err != nil {
			return err
		}
	}

	return nil
}

func joinFolderPath(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(parent, "/") + "/" + name
}

// DownloadFile fetches a file's raw bytes. Graph answers the :/content
// endpoint with a redirect to a pre-authenticated URL, which the http
// client follows.
func (c *Client) DownloadFile(ctx context.Context, siteID, driveID, folderPath, fileName string) ([]byte, error) {
	folder := strings.TrimSuffix(folderPath, "/")
	url := fmt.Sprintf("%s/sites/%s/drives/%s/root:%s/%s:/content",
		c.config.BaseURL, siteID, driveID, folder, fileName)

	data, err := c.getRaw(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileName, err)
	}
	return data, nil
}
