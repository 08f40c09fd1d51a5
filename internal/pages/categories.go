package pages

import (
	"context"
	"log/slog"

	"github.com/starford/brightline/internal/models"
)

// CategoryList backs the category selector, the blog sidebar and the admin
// category page.
type CategoryList struct {
	Categories []models.Category
	Loading    bool
}

// Load fetches every category, keeping the previous list on failure.
func (c *CategoryList) Load(ctx context.Context, b Backend, logger *slog.Logger) error {
	c.Loading = true
	defer func() { c.Loading = false }()

	res := b.GetCategories(ctx)
	if !res.Success {
		logFailure(logger, "categories", res)
		return res.Err()
	}
	c.Categories = res.Data
	return nil
}

// Find returns the category with id, or nil.
func (c *CategoryList) Find(id int64) *models.Category {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}
