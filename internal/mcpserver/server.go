// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the blog to LLM tooling over stdio. Every tool goes through the
// backend API client, so the backend's own validation and auth apply.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/parser"
)

const (
	defaultSearchLimit  = 20
	defaultRelatedLimit = 3
	listPageSize        = 20
)

// Backend is the part of the API client the tools use.
type Backend interface {
	GetPosts(ctx context.Context, q apiclient.PostQuery) apiclient.Result[apiclient.PostPage]
	GetPostBySlug(ctx context.Context, slug string) apiclient.Result[models.Post]
	GetPost(ctx context.Context, id int64) apiclient.Result[models.Post]
	SearchPosts(ctx context.Context, query string, limit int) apiclient.Result[[]models.Post]
	GetRelatedPosts(ctx context.Context, postID int64, limit int) apiclient.Result[[]models.Post]
	GetCategories(ctx context.Context) apiclient.Result[[]models.Category]
	CreatePost(ctx context.Context, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post]
	UploadImage(ctx context.Context, image apiclient.FilePart) apiclient.Result[apiclient.UploadedImage]
}

var _ Backend = (*apiclient.Client)(nil)

// Server wraps the MCP server with the blog tools.
type Server struct {
	mcp    *server.MCPServer
	client Backend
	logger *slog.Logger
	fetch  fetchFunc
}

// New creates an MCP server with all tools registered.
func New(client Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{client: client, logger: logger, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"Brightline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Full-text search through post titles, excerpts, content and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read a post as Markdown with YAML frontmatter. Pass either slug or id."),
		mcp.WithString("slug", mcp.Description("Post slug")),
		mcp.WithNumber("id", mcp.Description("Post id")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts, newest first, one page at a time."),
		mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
		mcp.WithString("status", mcp.Description("Optional status filter: draft or published")),
		mcp.WithString("category", mcp.Description("Optional category slug")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List all categories with their published post counts."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("get_related_posts",
		mcp.WithDescription("Find posts related to a post by category and shared tags."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Post id")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 3)")),
	), s.getRelatedPosts)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a post from Markdown with YAML frontmatter. "+
			"Content MUST follow the post format contract. Read it first via the "+
			"get_post_contract tool or the "+PostFormatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown following the post format contract")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("get_post_contract",
		mcp.WithDescription("Returns the post format contract. "+
			"Call this before creating posts to ensure correct structure."),
	), s.getPostContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Upload an image from an http(s) URL or a base64 data URI. "+
			"Returns the public url and a Markdown image snippet."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional file name with extension")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(PostFormatURI, "Post Format Contract",
			mcp.WithResourceDescription("Markdown post format accepted by create_post."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// postSummary is the listing shape returned to the model.
type postSummary struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Status      string   `json:"status"`
	Category    string   `json:"category,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
}

func summarize(posts []models.Post) []postSummary {
	out := make([]postSummary, 0, len(posts))
	for _, p := range posts {
		sum := postSummary{
			ID:       p.ID,
			Title:    p.Title,
			Slug:     p.Slug,
			Status:   string(p.Status),
			Category: p.CategoryName,
			Excerpt:  p.Excerpt,
			Tags:     p.Tags,
		}
		if p.PublishedAt != nil {
			sum.PublishedAt = p.PublishedAt.Format("2006-01-02")
		}
		out = append(out, sum)
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func failed[T any](res apiclient.Result[T]) *mcp.CallToolResult {
	return mcp.NewToolResultError(res.Err().Error())
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.client.SearchPosts(ctx, query, req.GetInt("limit", defaultSearchLimit))
	if !res.Success {
		return failed(res), nil
	}
	return jsonResult(summarize(res.Data)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var res apiclient.Result[models.Post]
	if slug := req.GetString("slug", ""); slug != "" {
		res = s.client.GetPostBySlug(ctx, slug)
	} else if id := req.GetInt("id", 0); id > 0 {
		res = s.client.GetPost(ctx, int64(id))
	} else {
		return mcp.NewToolResultError("slug or id is required"), nil
	}
	if !res.Success {
		return failed(res), nil
	}
	data, err := parser.Format(frontmatterOf(res.Data), res.Data.Content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func frontmatterOf(p models.Post) parser.Frontmatter {
	return parser.Frontmatter{
		Title:           p.Title,
		Slug:            p.Slug,
		Excerpt:         p.Excerpt,
		Category:        p.CategoryName,
		Status:          string(p.Status),
		Tags:            p.Tags,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
		FeaturedImage:   p.FeaturedImage,
	}
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := apiclient.PostQuery{
		Page:     req.GetInt("page", 1),
		Limit:    listPageSize,
		Status:   req.GetString("status", ""),
		Category: req.GetString("category", ""),
	}
	if q.Status != "" && !models.PostStatus(q.Status).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q (use draft or published)", q.Status)), nil
	}
	res := s.client.GetPosts(ctx, q)
	if !res.Success {
		return failed(res), nil
	}
	return jsonResult(map[string]any{
		"posts":      summarize(res.Data.Posts),
		"pagination": res.Data.Pagination,
	}), nil
}

func (s *Server) listCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.client.GetCategories(ctx)
	if !res.Success {
		return failed(res), nil
	}
	return jsonResult(res.Data), nil
}

func (s *Server) getRelatedPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id is required"), nil
	}
	res := s.client.GetRelatedPosts(ctx, int64(id), req.GetInt("limit", defaultRelatedLimit))
	if !res.Success {
		return failed(res), nil
	}
	return jsonResult(summarize(res.Data)), nil
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := parser.Parse([]byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !doc.HasFrontmatter {
		return mcp.NewToolResultError("content has no YAML frontmatter; see get_post_contract"), nil
	}
	if doc.Title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	status := models.PostStatus(strings.ToLower(doc.Meta.Status))
	if status == "" {
		status = models.StatusDraft
	}
	if !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q (use draft or published)", doc.Meta.Status)), nil
	}

	in := apiclient.PostInput{
		Title:           doc.Title,
		Slug:            doc.Meta.Slug,
		Content:         doc.Body,
		Excerpt:         doc.Meta.Excerpt,
		Status:          status,
		MetaTitle:       doc.Meta.MetaTitle,
		MetaDescription: doc.Meta.MetaDescription,
		Tags:            doc.Tags,
		FeaturedImage:   doc.Meta.FeaturedImage,
	}
	if name := strings.TrimSpace(doc.Meta.Category); name != "" {
		id, err := s.categoryID(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.CategoryID = &id
	}

	res := s.client.CreatePost(ctx, in, nil)
	if !res.Success {
		return failed(res), nil
	}
	s.logger.Info("mcp: post created", slog.Int64("id", res.Data.ID), slog.String("slug", res.Data.Slug))
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (id %d, %s)", res.Data.Slug, res.Data.ID, res.Data.Status)), nil
}

// categoryID matches name against category names and slugs.
func (s *Server) categoryID(ctx context.Context, name string) (int64, error) {
	res := s.client.GetCategories(ctx)
	if !res.Success {
		return 0, res.Err()
	}
	names := make([]string, 0, len(res.Data))
	for _, c := range res.Data {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Slug, name) {
			return c.ID, nil
		}
		names = append(names, c.Name)
	}
	return 0, fmt.Errorf("unknown category %q (available: %s)", name, strings.Join(names, ", "))
}

func (s *Server) getPostContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      PostFormatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
