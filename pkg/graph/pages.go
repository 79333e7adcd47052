package graph

import (
	"context"
	"fmt"
	"strings"
)

type SitePage struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	WebURL string `json:"webUrl"`
}

type canvasLayout struct {
	HorizontalSections []struct {
		Columns []struct {
			Webparts []struct {
				InnerHTML string `json:"innerHtml"`
			} `json:"webparts"`
		} `json:"columns"`
	} `json:"horizontalSections"`
}

// SitePages lists the modern pages of a site.
func (c *Client) SitePages(ctx context.Context, siteID string) ([]SitePage, error) {
	url := fmt.Sprintf("%s/sites/%s/pages", c.config.BaseURL, siteID)

	var result struct {
		Value []SitePage `json:"value"`
	}
	if err := c.get(ctx, url, &result); err != nil {
		return nil, fmt.Errorf("listing site pages: %w", err)
	}
	return result.Value, nil
}

// PageHTML fetches one page expanded with its canvas layout and returns
// the concatenated web-part HTML fragments.
func (c *Client) PageHTML(ctx context.Context, siteID, pageID string) (string, error) {
	url := fmt.Sprintf("%s/sites/%s/pages/%s/microsoft.graph.sitePage?$expand=canvasLayout",
		c.config.BaseURL, siteID, pageID)

	var result struct {
		CanvasLayout canvasLayout `json:"canvasLayout"`
	}
	if err := c.get(ctx, url, &result); err != nil {
		return "", fmt.Errorf("fetching page %s: %w", pageID, err)
	}

	var parts []string
	for _, section := range result.CanvasLayout.HorizontalSections {
		for _, column := range section.Columns {
			for _, webpart := range column.Webparts {
				if webpart.InnerHTML != "" {
					parts = append(parts, webpart.InnerHTML)
				}
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}
