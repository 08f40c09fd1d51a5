package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/brightline/internal/apiclient"
)

// categoryCache maps frontmatter category names to ids for one sync,
// creating categories the backend does not have yet.
type categoryCache struct {
	client Backend
	loaded bool
	byKey  map[string]int64
}

func newCategoryCache(client Backend) *categoryCache {
	return &categoryCache{client: client, byKey: make(map[string]int64)}
}

func (c *categoryCache) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	res := c.client.GetCategories(ctx)
	if !res.Success {
		return fmt.Errorf("importer: categories: %w", res.Err())
	}
	for _, cat := range res.Data {
		c.byKey[strings.ToLower(cat.Name)] = cat.ID
		c.byKey[strings.ToLower(cat.Slug)] = cat.ID
	}
	c.loaded = true
	return nil
}

// resolve matches name against category names and slugs, case-insensitively.
func (c *categoryCache) resolve(ctx context.Context, name string) (int64, error) {
	if err := c.load(ctx); err != nil {
		return 0, err
	}
	key := strings.ToLower(name)
	if id, ok := c.byKey[key]; ok {
		return id, nil
	}
	res := c.client.CreateCategory(ctx, apiclient.CategoryInput{Name: name})
	if !res.Success {
		return 0, fmt.Errorf("importer: create category %q: %w", name, res.Err())
	}
	c.byKey[key] = res.Data.ID
	c.byKey[strings.ToLower(res.Data.Slug)] = res.Data.ID
	return res.Data.ID, nil
}
