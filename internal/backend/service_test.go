package backend

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
)

type recordedChange struct {
	resource, kind string
	id             int64
}

type recorder struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (r *recorder) PublishChange(resource, kind string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, recordedChange{resource, kind, id})
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "backend.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	rec := &recorder{}
	return NewService(db, WithPublisher(rec)), rec
}

func mustCreatePost(t *testing.T, s *Service, in PostInput) *models.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), nil, in)
	if err != nil {
		t.Fatalf("create post %q: %v", in.Title, err)
	}
	return p
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":          "hello-world",
		"  SEO  for Agencies  ":  "seo-for-agencies",
		"Déjà vu":                "d-j-vu",
		"---":                    "",
		"2024 Roadmap: Q1 + Q2 ": "2024-roadmap-q1-q2",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short\n\ntext", 160); got != "short text" {
		t.Errorf("Excerpt = %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := Excerpt(long, 40)
	if !strings.HasSuffix(got, "...") || len(got) > 43 {
		t.Errorf("Excerpt = %q", got)
	}
}

func TestLogin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if err := s.EnsureAdmin(ctx, "admin", "secret", "Admin", ""); err != nil {
		t.Fatal(err)
	}
	// Seeding twice is a no-op.
	if err := s.EnsureAdmin(ctx, "other", "pw", "", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Login(ctx, "admin", "wrong"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := s.Login(ctx, "other", "pw"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("unknown user err = %v", err)
	}

	sess, err := s.Login(ctx, "admin", "secret")
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "admin" {
		t.Errorf("user = %+v", u)
	}
	if _, err := s.Authenticate(ctx, "bogus"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("bogus token err = %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if err := s.EnsureAdmin(ctx, "admin", "secret", "", ""); err != nil {
		t.Fatal(err)
	}
	s.tokenTTL = time.Minute
	sess, err := s.Login(ctx, "admin", "secret")
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if _, err := s.Authenticate(ctx, sess.Token); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expired token err = %v", err)
	}
	n, err := s.PurgeExpiredTokens(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
}

func TestCreatePost_SlugsAndDefaults(t *testing.T) {
	s, rec := newTestService(t)
	ctx := context.Background()

	first := mustCreatePost(t, s, PostInput{Title: "Hello World", Content: "Body text"})
	if first.Slug != "hello-world" {
		t.Errorf("slug = %q", first.Slug)
	}
	if first.Status != models.StatusDraft || first.PublishedAt != nil {
		t.Errorf("status = %q published_at = %v", first.Status, first.PublishedAt)
	}
	if first.Excerpt != "Body text" {
		t.Errorf("excerpt = %q", first.Excerpt)
	}

	second := mustCreatePost(t, s, PostInput{Title: "Hello world", Content: "x"})
	if second.Slug != "hello-world-2" {
		t.Errorf("second slug = %q", second.Slug)
	}

	_, err := s.CreatePost(ctx, nil, PostInput{Title: "Other", Slug: "hello-world", Content: "x"})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("explicit duplicate slug err = %v", err)
	}

	_, err = s.CreatePost(ctx, nil, PostInput{Content: "x"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing title err = %v", err)
	}

	if len(rec.changes) != 2 || rec.changes[0] != (recordedChange{"post", "created", first.ID}) {
		t.Errorf("changes = %+v", rec.changes)
	}
}

func TestUpdatePost_PublishStamps(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreatePost(t, s, PostInput{Title: "Draft", Content: "x", Tags: []string{"go", " Go ", ""}})
	if len(p.Tags) != 1 {
		t.Errorf("tags = %v", p.Tags)
	}

	pub, err := s.UpdatePost(ctx, p.ID, PostInput{Title: "Draft", Content: "x", Status: models.StatusPublished})
	if err != nil {
		t.Fatal(err)
	}
	if pub.PublishedAt == nil {
		t.Fatal("published_at not set")
	}
	if pub.Slug != p.Slug {
		t.Errorf("slug changed to %q", pub.Slug)
	}

	again, err := s.UpdatePost(ctx, p.ID, PostInput{Title: "Renamed", Content: "y", Status: models.StatusPublished})
	if err != nil {
		t.Fatal(err)
	}
	if !again.PublishedAt.Equal(*pub.PublishedAt) {
		t.Errorf("published_at moved from %v to %v", pub.PublishedAt, again.PublishedAt)
	}

	if _, err := s.UpdatePost(ctx, 999, PostInput{Title: "x", Content: "y"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing post err = %v", err)
	}
}

func TestListPosts_FiltersAndPagination(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	cat, err := s.CreateCategory(ctx, CategoryInput{Name: "SEO"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		in := PostInput{Title: "Post " + string(rune('A'+i)), Content: "generic", Status: models.StatusPublished}
		if i%3 == 0 {
			in.CategoryID = &cat.ID
			in.Content = "all about seo"
		}
		mustCreatePost(t, s, in)
	}
	mustCreatePost(t, s, PostInput{Title: "Hidden", Content: "seo draft"})

	posts, page, err := s.ListPosts(ctx, PostFilter{Status: models.StatusPublished, Page: 2, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 5 || page.Total != 12 || page.Pages != 3 || page.Page != 2 {
		t.Errorf("page = %+v, %d posts", page, len(posts))
	}

	posts, _, err = s.ListPosts(ctx, PostFilter{Status: models.StatusPublished, Search: "seo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 4 {
		t.Errorf("search found %d posts, want 4", len(posts))
	}

	c, catPosts, _, err := s.CategoryPosts(ctx, "seo", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if c.PostCount != 4 || len(catPosts) != 4 {
		t.Errorf("category count = %d, posts = %d", c.PostCount, len(catPosts))
	}
	if catPosts[0].CategoryName != "SEO" {
		t.Errorf("category name = %q", catPosts[0].CategoryName)
	}

	all, _, err := s.ListPosts(ctx, PostFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Errorf("default page size gave %d posts", len(all))
	}
}

func TestGetPostBySlug_ViewsAndDrafts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	pub := mustCreatePost(t, s, PostInput{Title: "Public", Content: "x", Status: models.StatusPublished})
	draft := mustCreatePost(t, s, PostInput{Title: "Secret", Content: "x"})

	got, err := s.GetPostBySlug(ctx, pub.Slug, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Views != 1 {
		t.Errorf("views = %d", got.Views)
	}
	if got.RelatedPosts == nil {
		t.Error("related posts should be an empty list")
	}

	if _, err := s.GetPostBySlug(ctx, draft.Slug, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("anonymous draft err = %v", err)
	}
	if _, err := s.GetPost(ctx, draft.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("anonymous draft by id err = %v", err)
	}
	if _, err := s.GetPost(ctx, draft.ID, true); err != nil {
		t.Errorf("admin draft by id err = %v", err)
	}
}

func TestRelatedPosts_CategoryThenTags(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	cat, err := s.CreateCategory(ctx, CategoryInput{Name: "Design"})
	if err != nil {
		t.Fatal(err)
	}
	pub := models.StatusPublished
	base := mustCreatePost(t, s, PostInput{Title: "Base", Content: "x", Status: pub, CategoryID: &cat.ID, Tags: []string{"ux"}})
	sameCat := mustCreatePost(t, s, PostInput{Title: "Same cat", Content: "x", Status: pub, CategoryID: &cat.ID})
	sameTag := mustCreatePost(t, s, PostInput{Title: "Same tag", Content: "x", Status: pub, Tags: []string{"UX"}})
	mustCreatePost(t, s, PostInput{Title: "Unrelated", Content: "x", Status: pub})

	related, err := s.RelatedPosts(ctx, base.ID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(related) != 2 || related[0].ID != sameCat.ID || related[1].ID != sameTag.ID {
		t.Errorf("related = %+v", related)
	}
}

func TestFeaturedPosts_MostViewed(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreatePost(t, s, PostInput{Title: "A", Content: "x", Status: models.StatusPublished})
	b := mustCreatePost(t, s, PostInput{Title: "B", Content: "x", Status: models.StatusPublished})
	for i := 0; i < 3; i++ {
		if _, err := s.GetPostBySlug(ctx, b.Slug, false); err != nil {
			t.Fatal(err)
		}
	}
	featured, err := s.FeaturedPosts(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(featured) != 2 || featured[0].ID != b.ID || featured[1].ID != a.ID {
		t.Errorf("featured = %+v", featured)
	}
}

func TestCategories_CRUD(t *testing.T) {
	s, rec := newTestService(t)
	ctx := context.Background()

	c, err := s.CreateCategory(ctx, CategoryInput{Name: "Web Design", Description: "Sites"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Slug != "web-design" {
		t.Errorf("slug = %q", c.Slug)
	}
	if _, err := s.CreateCategory(ctx, CategoryInput{Name: "web design"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}

	p := mustCreatePost(t, s, PostInput{Title: "P", Content: "x", CategoryID: &c.ID})

	u, err := s.UpdateCategory(ctx, c.ID, CategoryInput{Name: "Design", Slug: "design"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Slug != "design" || u.Name != "Design" {
		t.Errorf("updated = %+v", u)
	}

	if err := s.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPost(ctx, p.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.CategoryID != nil {
		t.Errorf("post still in deleted category %d", *got.CategoryID)
	}
	if err := s.DeleteCategory(ctx, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	unknown := int64(42)
	if _, err := s.CreatePost(ctx, nil, PostInput{Title: "Q", Content: "x", CategoryID: &unknown}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown category err = %v", err)
	}

	kinds := make([]string, 0, len(rec.changes))
	for _, ch := range rec.changes {
		if ch.resource == "category" {
			kinds = append(kinds, ch.kind)
		}
	}
	if strings.Join(kinds, ",") != "created,updated,deleted" {
		t.Errorf("category changes = %v", kinds)
	}
}

func TestSearchPosts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustCreatePost(t, s, PostInput{Title: "Local SEO", Content: "maps", Status: models.StatusPublished})
	mustCreatePost(t, s, PostInput{Title: "Branding", Content: "logos", Status: models.StatusPublished, Tags: []string{"seo"}})
	mustCreatePost(t, s, PostInput{Title: "SEO draft", Content: "x"})

	got, err := s.SearchPosts(ctx, "seo", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("found %d posts, want 2", len(got))
	}
	empty, err := s.SearchPosts(ctx, "   ", 0)
	if err != nil || len(empty) != 0 {
		t.Errorf("blank search = %v, %v", empty, err)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestService(t)
	mustCreatePost(t, s, PostInput{Title: "A", Content: "x", Status: models.StatusPublished})
	mustCreatePost(t, s, PostInput{Title: "B", Content: "x"})
	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.Published != 1 || st.Drafts != 1 {
		t.Errorf("stats = %+v", st)
	}
}
