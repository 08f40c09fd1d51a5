package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/brightline/internal/models"
)

// PostQuery filters a post listing. Zero values are omitted from the request.
type PostQuery struct {
	Page     int
	Limit    int
	Search   string
	Category string
	Status   string
}

func (q PostQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

// PostPage is one page of posts.
type PostPage struct {
	Posts      []models.Post     `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
}

// CategoryPosts is one page of posts in a category.
type CategoryPosts struct {
	Category   models.Category   `json:"category"`
	Posts      []models.Post     `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
}

// PostInput is the full replacement submitted on create and update.
type PostInput struct {
	Title           string
	Slug            string
	Content         string
	Excerpt         string
	CategoryID      *int64
	Status          models.PostStatus
	MetaTitle       string
	MetaDescription string
	Tags            []string
	// FeaturedImage keeps an already uploaded image URL when no new file is sent.
	FeaturedImage string
}

// Fields returns the multipart form fields for the input.
func (in PostInput) Fields() url.Values {
	v := url.Values{}
	v.Set("title", in.Title)
	v.Set("slug", in.Slug)
	v.Set("content", in.Content)
	v.Set("excerpt", in.Excerpt)
	v.Set("status", string(in.Status))
	v.Set("meta_title", in.MetaTitle)
	v.Set("meta_description", in.MetaDescription)
	v.Set("tags", strings.Join(in.Tags, ","))
	v.Set("featured_image_url", in.FeaturedImage)
	if in.CategoryID != nil {
		v.Set("category_id", strconv.FormatInt(*in.CategoryID, 10))
	} else {
		v.Set("category_id", "")
	}
	return v
}

// Deleted is the payload of delete actions.
type Deleted struct {
	ID int64 `json:"id"`
}

// UploadedImage is the payload of uploadImage.
type UploadedImage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// GetPosts lists posts.
func (c *Client) GetPosts(ctx context.Context, q PostQuery) Result[PostPage] {
	res := decode[PostPage](c.Request(ctx, "getPosts", RequestOptions{Query: q.values()}))
	if res.Success {
		res.Data.Posts = nonNilSlice(res.Data.Posts)
	}
	return res
}

// GetPostBySlug fetches one published post by slug, with related posts.
func (c *Client) GetPostBySlug(ctx context.Context, slug string) Result[models.Post] {
	res := decode[models.Post](c.Request(ctx, "getPost", RequestOptions{
		Query: url.Values{"slug": {slug}},
	}))
	if res.Success {
		res.Data.Tags = nonNilSlice(res.Data.Tags)
	}
	return res
}

// GetPost fetches one post by id. Drafts are only visible with a token.
func (c *Client) GetPost(ctx context.Context, id int64) Result[models.Post] {
	res := decode[models.Post](c.Request(ctx, "getPost", RequestOptions{
		Query: url.Values{"id": {strconv.FormatInt(id, 10)}},
	}))
	if res.Success {
		res.Data.Tags = nonNilSlice(res.Data.Tags)
	}
	return res
}

// GetPostsByCategory lists published posts in the category with the given slug.
func (c *Client) GetPostsByCategory(ctx context.Context, slug string, page, limit int) Result[CategoryPosts] {
	q := PostQuery{Page: page, Limit: limit}.values()
	q.Set("slug", slug)
	res := decode[CategoryPosts](c.Request(ctx, "getCategoryPosts", RequestOptions{Query: q}))
	if res.Success {
		res.Data.Posts = nonNilSlice(res.Data.Posts)
	}
	return res
}

// SearchPosts runs a full-text search over published posts.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) Result[[]models.Post] {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	res := decode[[]models.Post](c.Request(ctx, "searchPosts", RequestOptions{Query: q}))
	if res.Success {
		res.Data = nonNilSlice(res.Data)
	}
	return res
}

// GetFeaturedPosts returns the most viewed published posts.
func (c *Client) GetFeaturedPosts(ctx context.Context, limit int) Result[[]models.Post] {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	res := decode[[]models.Post](c.Request(ctx, "getFeaturedPosts", RequestOptions{Query: q}))
	if res.Success {
		res.Data = nonNilSlice(res.Data)
	}
	return res
}

// GetRelatedPosts returns posts related to postID.
func (c *Client) GetRelatedPosts(ctx context.Context, postID int64, limit int) Result[[]models.Post] {
	q := url.Values{"post_id": {strconv.FormatInt(postID, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	res := decode[[]models.Post](c.Request(ctx, "getRelatedPosts", RequestOptions{Query: q}))
	if res.Success {
		res.Data = nonNilSlice(res.Data)
	}
	return res
}

// CreatePost submits a new post as multipart form data. image is optional.
func (c *Client) CreatePost(ctx context.Context, in PostInput, image *FilePart) Result[models.Post] {
	return decode[models.Post](c.Request(ctx, "createPost", RequestOptions{
		Method:    http.MethodPost,
		Multipart: postMultipart(in.Fields(), image),
	}))
}

// UpdatePost replaces post id with in. image is optional.
func (c *Client) UpdatePost(ctx context.Context, id int64, in PostInput, image *FilePart) Result[models.Post] {
	fields := in.Fields()
	fields.Set("id", strconv.FormatInt(id, 10))
	return decode[models.Post](c.Request(ctx, "updatePost", RequestOptions{
		Method:    http.MethodPost,
		Multipart: postMultipart(fields, image),
	}))
}

// DeletePost deletes post id.
func (c *Client) DeletePost(ctx context.Context, id int64) Result[Deleted] {
	return decode[Deleted](c.Request(ctx, "deletePost", RequestOptions{
		Method: http.MethodDelete,
		Query:  url.Values{"id": {strconv.FormatInt(id, 10)}},
	}))
}

// UploadImage uploads one image file and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, image FilePart) Result[UploadedImage] {
	image.Field = "image"
	return decode[UploadedImage](c.Request(ctx, "uploadImage", RequestOptions{
		Method:    http.MethodPost,
		Multipart: &Multipart{Files: []FilePart{image}},
	}))
}

func postMultipart(fields url.Values, image *FilePart) *Multipart {
	m := &Multipart{Fields: fields}
	if image != nil && image.Content != nil {
		img := *image
		img.Field = "featured_image"
		m.Files = append(m.Files, img)
	}
	return m
}
