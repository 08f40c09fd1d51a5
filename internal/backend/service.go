package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/checksum"
	"github.com/starford/brightline/internal/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	excerptLength   = 160
)

// Publisher receives change notifications.
type Publisher interface {
	PublishChange(resource, kind string, id int64)
}

type nopPublisher struct{}

func (nopPublisher) PublishChange(string, string, int64) {}

// InputError is a rejected request. Its message is safe to show to users.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Is makes InputError match apperr.ErrInvalidInput.
func (e *InputError) Is(target error) bool { return target == apperr.ErrInvalidInput }

func invalid(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// Service holds the content rules on top of the repository.
type Service struct {
	db       *DB
	events   Publisher
	logger   *slog.Logger
	tokenTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets the change publisher.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a content service.
func NewService(db *DB, opts ...ServiceOption) *Service {
	s := &Service{
		db:       db,
		events:   nopPublisher{},
		logger:   slog.Default(),
		tokenTTL: 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- users & tokens ---

// EnsureAdmin creates the admin account when no account exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password, name, email string) error {
	n, err := s.db.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("backend: admin username and password are required to seed")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("backend: hash password: %w", err)
	}
	if _, err := s.db.InsertUser(ctx, userRow{
		Username:     username,
		Name:         name,
		Email:        email,
		Role:         "admin",
		PasswordHash: string(hash),
	}); err != nil {
		return err
	}
	s.logger.Info("admin account created", slog.String("username", username))
	return nil
}

// Session is an issued bearer token.
type Session struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.ErrUnauthorized
	}

	token := uuid.New().String()
	now := s.now()
	expires := now.Add(s.tokenTTL)
	if err := s.db.InsertToken(ctx, checksum.Sum([]byte(token)), u.ID, now, expires); err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u.model(), ExpiresAt: expires}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.db.UserByToken(ctx, checksum.Sum([]byte(token)), s.now())
}

// PurgeExpiredTokens removes expired tokens.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.db.PurgeTokens(ctx, s.now())
}

// --- posts ---

// PostInput is a full post submission.
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
	FeaturedImage   string
}

// Validate checks required fields and lengths.
func (in PostInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Content, validation.Required),
		validation.Field(&in.Slug, validation.Length(0, 200)),
		validation.Field(&in.Status, validation.In(models.StatusDraft, models.StatusPublished)),
		validation.Field(&in.MetaTitle, validation.Length(0, 70)),
		validation.Field(&in.MetaDescription, validation.Length(0, 160)),
	)
	if err != nil {
		return invalid("%s", err.Error())
	}
	return nil
}

// ListPosts returns a page of posts. Callers pass Status published for
// anonymous requests.
func (s *Service) ListPosts(ctx context.Context, f PostFilter) ([]models.Post, models.Pagination, error) {
	f.Page, f.Limit = clampPage(f.Page, f.Limit)
	posts, total, err := s.db.ListPosts(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return posts, models.NewPagination(f.Page, f.Limit, total), nil
}

// GetPost returns post id. Drafts are only visible when includeDrafts is set.
func (s *Service) GetPost(ctx context.Context, id int64, includeDrafts bool) (*models.Post, error) {
	p, err := s.db.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !includeDrafts && !p.IsPublished() {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}

// GetPostBySlug returns the post with slug and its related posts. Public
// reads count a view.
func (s *Service) GetPostBySlug(ctx context.Context, slug string, includeDrafts bool) (*models.Post, error) {
	p, err := s.db.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.IsPublished() {
		if !includeDrafts {
			return nil, apperr.ErrNotFound
		}
	} else if !includeDrafts {
		if err := s.db.IncrementViews(ctx, p.ID); err != nil {
			s.logger.Warn("count view failed", slog.Int64("post_id", p.ID), slog.String("error", err.Error()))
		} else {
			p.Views++
		}
	}
	related, err := s.RelatedPosts(ctx, p.ID, 3)
	if err != nil {
		s.logger.Warn("related posts failed", slog.Int64("post_id", p.ID), slog.String("error", err.Error()))
		related = []models.Post{}
	}
	p.RelatedPosts = related
	return p, nil
}

// CreatePost stores a new post written by author.
func (s *Service) CreatePost(ctx context.Context, author *models.User, in PostInput) (*models.Post, error) {
	in = normalizePost(in)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	slug, err := s.postSlug(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	now := s.now()
	rec := postRecord{
		Title:           in.Title,
		Slug:            slug,
		Content:         in.Content,
		Excerpt:         in.Excerpt,
		FeaturedImage:   in.FeaturedImage,
		CategoryID:      nullInt(in.CategoryID),
		Status:          string(in.Status),
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
		Tags:            encodeTags(in.Tags),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if author != nil {
		rec.AuthorID = sql.NullInt64{Int64: author.ID, Valid: true}
	}
	if in.Status == models.StatusPublished {
		rec.PublishedAt = sql.NullTime{Time: now, Valid: true}
	}

	id, err := s.db.InsertPost(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.events.PublishChange("post", "created", id)
	return s.db.GetPost(ctx, id)
}

// UpdatePost replaces post id with in. The first publication stamps
// published_at; returning to draft clears it.
func (s *Service) UpdatePost(ctx context.Context, id int64, in PostInput) (*models.Post, error) {
	existing, err := s.db.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	in = normalizePost(in)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Slug == "" {
		in.Slug = existing.Slug
	}
	slug, err := s.postSlug(ctx, in, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	if in.FeaturedImage == "" {
		in.FeaturedImage = existing.FeaturedImage
	}

	now := s.now()
	rec := postRecord{
		ID:              id,
		Title:           in.Title,
		Slug:            slug,
		Content:         in.Content,
		Excerpt:         in.Excerpt,
		FeaturedImage:   in.FeaturedImage,
		CategoryID:      nullInt(in.CategoryID),
		Status:          string(in.Status),
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
		Tags:            encodeTags(in.Tags),
		UpdatedAt:       now,
	}
	switch {
	case in.Status != models.StatusPublished:
	case existing.PublishedAt != nil:
		rec.PublishedAt = sql.NullTime{Time: *existing.PublishedAt, Valid: true}
	default:
		rec.PublishedAt = sql.NullTime{Time: now, Valid: true}
	}

	if err := s.db.UpdatePost(ctx, rec); err != nil {
		return nil, err
	}
	s.events.PublishChange("post", "updated", id)
	return s.db.GetPost(ctx, id)
}

// DeletePost removes post id.
func (s *Service) DeletePost(ctx context.Context, id int64) error {
	if err := s.db.DeletePost(ctx, id); err != nil {
		return err
	}
	s.events.PublishChange("post", "deleted", id)
	return nil
}

// SearchPosts searches published posts.
func (s *Service) SearchPosts(ctx context.Context, query string, limit int) ([]models.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Post{}, nil
	}
	_, limit = clampPage(1, limit)
	return s.db.Search(ctx, query, limit)
}

// FeaturedPosts returns the most viewed published posts.
func (s *Service) FeaturedPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 3
	}
	_, limit = clampPage(1, limit)
	return s.db.FeaturedPosts(ctx, limit)
}

// RelatedPosts ranks published posts by shared category, then shared tags.
func (s *Service) RelatedPosts(ctx context.Context, id int64, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 3
	}
	p, err := s.db.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	candidates, err := s.db.RelatedCandidates(ctx, id, 200)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		tags[strings.ToLower(t)] = true
	}
	type scored struct {
		post  models.Post
		score int
	}
	var ranked []scored
	for _, c := range candidates {
		score := 0
		if p.CategoryID != nil && c.CategoryID != nil && *p.CategoryID == *c.CategoryID {
			score += 10
		}
		for _, t := range c.Tags {
			if tags[strings.ToLower(t)] {
				score++
			}
		}
		if score > 0 {
			c.Content = ""
			ranked = append(ranked, scored{post: c, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]models.Post, 0, limit)
	for i := 0; i < len(ranked) && i < limit; i++ {
		out = append(out, ranked[i].post)
	}
	return out, nil
}

// Stats returns post counters for the dashboard.
func (s *Service) Stats(ctx context.Context) (PostStats, error) {
	return s.db.Stats(ctx)
}

func (s *Service) postSlug(ctx context.Context, in PostInput, id int64) (string, error) {
	if in.Slug != "" {
		slug := Slugify(in.Slug)
		if slug == "" {
			return "", invalid("slug: must contain letters or digits.")
		}
		taken, err := s.db.SlugTaken(ctx, slug, id)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("slug %q: %w", slug, apperr.ErrAlreadyExists)
		}
		return slug, nil
	}

	base := Slugify(in.Title)
	if base == "" {
		base = "post"
	}
	slug := base
	for n := 2; ; n++ {
		taken, err := s.db.SlugTaken(ctx, slug, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

func (s *Service) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := s.db.GetCategory(ctx, *id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return invalid("category_id: unknown category.")
		}
		return err
	}
	return nil
}

// --- categories ---

// CategoryInput is a category submission.
type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Validate checks the category fields.
func (in CategoryInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Slug, validation.Length(0, 100)),
		validation.Field(&in.Description, validation.Length(0, 500)),
	)
	if err != nil {
		return invalid("%s", err.Error())
	}
	return nil
}

// ListCategories returns every category with its published post count.
func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.db.ListCategories(ctx)
}

// CreateCategory stores a new category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	in, err := normalizeCategory(in)
	if err != nil {
		return nil, err
	}
	id, err := s.db.InsertCategory(ctx, in.Name, in.Slug, in.Description, s.now())
	if err != nil {
		return nil, err
	}
	s.events.PublishChange("category", "created", id)
	return s.db.GetCategory(ctx, id)
}

// UpdateCategory replaces category id.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*models.Category, error) {
	in, err := normalizeCategory(in)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateCategory(ctx, id, in.Name, in.Slug, in.Description); err != nil {
		return nil, err
	}
	s.events.PublishChange("category", "updated", id)
	return s.db.GetCategory(ctx, id)
}

// DeleteCategory removes category id.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.db.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.events.PublishChange("category", "deleted", id)
	return nil
}

// CategoryPosts returns the category with slug and a page of its published posts.
func (s *Service) CategoryPosts(ctx context.Context, slug string, page, limit int) (*models.Category, []models.Post, models.Pagination, error) {
	cat, err := s.db.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, nil, models.Pagination{}, err
	}
	posts, pg, err := s.ListPosts(ctx, PostFilter{
		Status:       models.StatusPublished,
		CategorySlug: slug,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, nil, models.Pagination{}, err
	}
	return cat, posts, pg, nil
}

// --- helpers ---

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 200 {
		s = strings.TrimRight(s[:200], "-")
	}
	return s
}

// Excerpt returns the first n characters of text on one line.
func Excerpt(text string, n int) string {
	text = strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}

func normalizePost(in PostInput) PostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.MetaTitle = strings.TrimSpace(in.MetaTitle)
	in.MetaDescription = strings.TrimSpace(in.MetaDescription)
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if in.Excerpt == "" {
		in.Excerpt = Excerpt(in.Content, excerptLength)
	}
	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool)
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		tags = append(tags, t)
	}
	in.Tags = tags
	return in
}

func normalizeCategory(in CategoryInput) (CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return in, err
	}
	if in.Slug = Slugify(in.Slug); in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	if in.Slug == "" {
		return in, invalid("slug: must contain letters or digits.")
	}
	return in, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}
