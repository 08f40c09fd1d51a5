package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/brightline/internal/models"
)

// CategoryInput is the body of category create and update.
type CategoryInput struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// GetCategories lists every category with its post count.
func (c *Client) GetCategories(ctx context.Context) Result[[]models.Category] {
	res := decode[[]models.Category](c.Request(ctx, "getCategories", RequestOptions{}))
	if res.Success {
		res.Data = nonNilSlice(res.Data)
	}
	return res
}

// CreateCategory creates a category.
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) Result[models.Category] {
	in.ID = 0
	return decode[models.Category](c.Request(ctx, "createCategory", RequestOptions{
		Method: http.MethodPost,
		JSON:   in,
	}))
}

// UpdateCategory replaces category id.
func (c *Client) UpdateCategory(ctx context.Context, id int64, in CategoryInput) Result[models.Category] {
	in.ID = id
	return decode[models.Category](c.Request(ctx, "updateCategory", RequestOptions{
		Method: http.MethodPost,
		JSON:   in,
	}))
}

// DeleteCategory deletes category id. Its posts become uncategorized.
func (c *Client) DeleteCategory(ctx context.Context, id int64) Result[Deleted] {
	return decode[Deleted](c.Request(ctx, "deleteCategory", RequestOptions{
		Method: http.MethodDelete,
		Query:  url.Values{"id": {strconv.FormatInt(id, 10)}},
	}))
}
