package graph

import (
	"context"
	"fmt"
)

type Permission struct {
	Roles                 []string      `json:"roles"`
	GrantedToIdentities   []identitySet `json:"grantedToIdentities"`
	GrantedToIdentitiesV2 []identitySet `json:"grantedToIdentitiesV2"`
	GrantedToV2           struct {
		SiteGroup struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"siteGroup"`
	} `json:"grantedToV2"`
}

// FilePermissions fetches the permission entries of one drive item.
func (c *Client) FilePermissions(ctx context.Context, siteID, itemID string) ([]Permission, error) {
	url := fmt.Sprintf("%s/sites/%s/drive/items/%s/permissions", c.config.BaseURL, siteID, itemID)

	var result struct {
		Value []Permission `json:"value"`
	}
	if err := c.get(ctx, url, &result); err != nil {
		return nil, fmt.Errorf("fetching permissions for item %s: %w", itemID, err)
	}
	return result.Value, nil
}

// ReadAccessEntities extracts the user ids and site-group display names
// that hold the "read" role, deduplicated in first-seen order.
func ReadAccessEntities(permissions []Permission) []string {
	var entities []string
	seen := make(map[string]bool)

	add := func(entity string) {
		if entity != "" && !seen[entity] {
			seen[entity] = true
			entities = append(entities, entity)
		}
	}

	for _, permission := range permissions {
		hasRead := false
		for _, role := range permission.Roles {
			if role == "read" {
				hasRead = true
				break
			}
		}
		if !hasRead {
			continue
		}

		for _, identity := range permission.GrantedToIdentitiesV2 {
			add(identity.User.ID)
		}
		for _, identity := range permission.GrantedToIdentities {
			add(identity.User.ID)
		}
		add(permission.GrantedToV2.SiteGroup.DisplayName)
	}

	return entities
}
