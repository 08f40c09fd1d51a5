package web_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/brightline/internal/backend"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/session"
	"github.com/starford/brightline/internal/storage"
	"github.com/starford/brightline/internal/testutil"
	"github.com/starford/brightline/internal/web"
)

type site struct {
	t       *testing.T
	backend *testutil.Backend
	kv      *storage.SQLite
	server  *httptest.Server
	client  *http.Client
}

func newSite(t *testing.T) *site {
	t.Helper()
	return newSiteVia(t, func(h http.Handler) http.Handler { return h })
}

// newSiteVia is newSite with every backend call passing through wrap.
func newSiteVia(t *testing.T, wrap func(http.Handler) http.Handler) *site {
	t.Helper()
	be := testutil.TestBackend(t)
	api := httptest.NewServer(wrap(be.Server.Config.Handler))
	t.Cleanup(api.Close)

	kv := testutil.TestKV(t)
	srv, err := web.New(web.Config{
		BackendURL:     api.URL + "/api",
		RequestTimeout: 5 * time.Second,
		LoginRate:      1000,
	}, kv, testutil.DiscardLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &site{t: t, backend: be, kv: kv, server: ts, client: hc}
}

func (s *site) do(req *http.Request) (*http.Response, string) {
	s.t.Helper()
	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, string(body)
}

func (s *site) get(path string) (*http.Response, string) {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(s.t, err)
	return s.do(req)
}

func (s *site) cookie(name string) string {
	u, _ := url.Parse(s.server.URL)
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// post submits form with the browser's CSRF token.
func (s *site) post(path string, form url.Values) (*http.Response, string) {
	s.t.Helper()
	if s.cookie("bl_csrf") == "" {
		s.get("/admin/login")
	}
	form.Set("csrf_token", s.cookie("bl_csrf"))
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *site) login(username, password string) (*http.Response, string) {
	s.t.Helper()
	return s.post("/admin/login", url.Values{"username": {username}, "password": {password}})
}

func (s *site) loginAdmin() {
	s.t.Helper()
	resp, _ := s.login(testutil.AdminUsername, testutil.AdminPassword)
	require.Equal(s.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(s.t, "/admin", resp.Header.Get("Location"))
}

// anonymous returns a second browser on the same site.
func (s *site) anonymous() *site {
	s.t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(s.t, err)
	other := *s
	other.client = &http.Client{Jar: jar, CheckRedirect: s.client.CheckRedirect}
	return &other
}

func (s *site) browserKV() storage.Provider {
	id := s.cookie("bl_client")
	require.NotEmpty(s.t, id)
	return s.kv.Namespace(id)
}

func (s *site) seedPost(title, content string, status models.PostStatus, category *int64) *models.Post {
	s.t.Helper()
	p, err := s.backend.Service.CreatePost(context.Background(), nil, backend.PostInput{
		Title:      title,
		Content:    content,
		Status:     status,
		CategoryID: category,
	})
	require.NoError(s.t, err)
	return p
}

func TestAdminRedirectsAnonymous(t *testing.T) {
	s := newSite(t)
	for _, path := range []string{"/admin", "/admin/posts", "/admin/posts/edit/1", "/admin/categories"} {
		resp, body := s.get(path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/admin/login", resp.Header.Get("Location"), path)
		assert.Empty(t, body, path)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newSite(t)

	resp, body := s.login(testutil.AdminUsername, "wrong")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")

	_, ok, err := s.browserKV().Get(context.Background(), session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	resp, _ = s.get("/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLoginMissingFields(t *testing.T) {
	s := newSite(t)
	resp, body := s.login("", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Username and password are required")
}

func TestLoginOpensDashboard(t *testing.T) {
	s := newSite(t)
	s.seedPost("Brand Strategy 101", "Start with why.", models.StatusPublished, nil)
	s.loginAdmin()

	for _, key := range []string{session.TokenKey, session.UserKey, session.LegacyUserKey} {
		_, ok, err := s.browserKV().Get(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	resp, body := s.get("/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Dashboard")
	assert.Contains(t, body, "Total posts: <strong>1</strong>")
	assert.Contains(t, body, "Brand Strategy 101")

	resp, _ = s.get("/admin/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))
}

func TestBrowsersDoNotShareSessions(t *testing.T) {
	s := newSite(t)
	s.loginAdmin()

	resp, _ := s.anonymous().get("/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	resp, _ = s.get("/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	s := newSite(t)
	s.loginAdmin()

	resp, _ := s.post("/admin/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	for _, key := range []string{session.TokenKey, session.UserKey, session.LegacyUserKey} {
		_, ok, err := s.browserKV().Get(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	_, body := s.get("/admin/login")
	assert.Contains(t, body, "You have been signed out.")
	resp, _ = s.get("/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestPostWithoutCSRFToken(t *testing.T) {
	s := newSite(t)
	form := url.Values{"username": {testutil.AdminUsername}, "password": {testutil.AdminPassword}}
	resp, err := s.client.PostForm(s.server.URL+"/admin/login", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEditMissingPost(t *testing.T) {
	s := newSite(t)
	s.loginAdmin()

	resp, _ := s.get("/admin/posts/edit/42")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/posts", resp.Header.Get("Location"))

	_, body := s.get("/admin/posts")
	assert.Contains(t, body, "Post not found")

	_, body = s.get("/admin/posts")
	assert.NotContains(t, body, "Post not found")
}

func TestCreateAndEditPost(t *testing.T) {
	s := newSite(t)
	cat, err := s.backend.Service.CreateCategory(context.Background(), backend.CategoryInput{Name: "Growth"})
	require.NoError(t, err)
	s.loginAdmin()

	resp, body := s.get("/admin/posts/new")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Growth")

	resp, _ = s.post("/admin/posts/new", url.Values{
		"title":       {"Growth Playbook"},
		"content":     {"First paragraph.\n\nSecond paragraph."},
		"status":      {"published"},
		"tags":        {"seo, growth"},
		"category_id": {itoa(cat.ID)},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/posts", resp.Header.Get("Location"))

	_, body = s.get("/admin/posts")
	assert.Contains(t, body, "Post created")
	assert.Contains(t, body, "Growth Playbook")

	post, err := s.backend.Service.GetPostBySlug(context.Background(), "growth-playbook", true)
	require.NoError(t, err)
	require.NotNil(t, post.CategoryID)
	assert.Equal(t, cat.ID, *post.CategoryID)
	assert.Equal(t, []string{"seo", "growth"}, post.Tags)

	resp, body = s.get("/blog/growth-playbook")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<p>First paragraph.</p>")
	assert.Contains(t, body, "Tags: seo, growth")

	editPath := "/admin/posts/edit/" + itoa(post.ID)
	resp, body = s.get(editPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="Growth Playbook"`)
	assert.Contains(t, body, `value="seo, growth"`)

	resp, _ = s.post(editPath, url.Values{
		"title":   {"Growth Playbook 2"},
		"slug":    {"growth-playbook"},
		"content": {"Updated."},
		"status":  {"draft"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Drafts stay visible to the signed-in admin only.
	resp, _ = s.get("/blog/growth-playbook")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.anonymous().get("/blog/growth-playbook")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreatePostValidation(t *testing.T) {
	s := newSite(t)
	s.loginAdmin()

	resp, body := s.post("/admin/posts/new", url.Values{"content": {"no title"}, "status": {"draft"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `role="alert"`)
	assert.Contains(t, body, "no title")
}

func TestDeletePost(t *testing.T) {
	s := newSite(t)
	p := s.seedPost("Short Lived", "Soon gone.", models.StatusPublished, nil)
	s.loginAdmin()

	resp, _ := s.post("/admin/posts/"+itoa(p.ID)+"/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := s.get("/admin/posts")
	assert.Contains(t, body, "Post deleted")
	assert.NotContains(t, body, "Short Lived")
}

func TestExpiredTokenSignsOut(t *testing.T) {
	s := newSite(t)
	draft := s.seedPost("Unfinished Draft", "Work in progress.", models.StatusDraft, nil)

	paths := []string{"/admin", "/admin/posts", "/admin/posts/edit/" + itoa(draft.ID), "/admin/categories"}
	for _, path := range paths {
		s.loginAdmin()
		require.NoError(t, s.browserKV().Set(context.Background(), session.TokenKey, "revoked"))

		resp, _ := s.get(path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/admin/login", resp.Header.Get("Location"), path)

		_, ok, err := s.browserKV().Get(context.Background(), session.TokenKey)
		require.NoError(t, err)
		assert.False(t, ok, path)

		_, body := s.get("/admin/login")
		assert.Contains(t, body, "Your session has expired", path)
		assert.NotContains(t, body, "Post not found", path)
	}
}

func TestExpiredTokenOnPublicPages(t *testing.T) {
	s := newSite(t)
	p := s.seedPost("Growth Loops", "Compounding wins.", models.StatusPublished, nil)
	s.loginAdmin()
	require.NoError(t, s.browserKV().Set(context.Background(), session.TokenKey, "revoked"))

	resp, body := s.get("/blog")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Growth Loops")

	_, ok, err := s.browserKV().Get(context.Background(), session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	resp, body = s.get("/blog/" + p.Slug)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Compounding wins.")
}

// holdAction delays calls to action until n of them are in flight, so
// requests that would otherwise finish one after another overlap.
func holdAction(action string, n int) func(http.Handler) http.Handler {
	var (
		mu   sync.Mutex
		seen int
	)
	all := make(chan struct{})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("action") == action {
				mu.Lock()
				seen++
				if seen == n {
					close(all)
				}
				mu.Unlock()
				select {
				case <-all:
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type pageResult struct {
	status int
	body   string
	err    error
}

// getAll issues every request at once from the same browser.
func (s *site) getAll(reqs ...*http.Request) []pageResult {
	out := make([]pageResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.client.Do(req)
			if err != nil {
				out[i].err = err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			out[i] = pageResult{status: resp.StatusCode, body: string(body), err: err}
		}()
	}
	wg.Wait()
	return out
}

func (s *site) newGet(path string, header http.Header) *http.Request {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(s.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return req
}

func TestOverlappingPageLoadsFromOneBrowser(t *testing.T) {
	s := newSiteVia(t, holdAction("getPost", 2))
	first := s.seedPost("Brand Voice Basics", "Say it plainly.", models.StatusPublished, nil)
	second := s.seedPost("Landing Page Audit", "Check the fold.", models.StatusPublished, nil)
	s.get("/")

	got := s.getAll(s.newGet("/blog/"+first.Slug, nil), s.newGet("/blog/"+second.Slug, nil))
	for i, want := range []string{"Say it plainly.", "Check the fold."} {
		require.NoError(t, got[i].err)
		assert.Equal(t, http.StatusOK, got[i].status, want)
		assert.Contains(t, got[i].body, want)
	}
}

func TestOverlappingListLoadsFromOneBrowser(t *testing.T) {
	s := newSiteVia(t, holdAction("getPosts", 2))
	s.seedPost("Paid Search Primer", "Bid smart.", models.StatusPublished, nil)
	s.get("/")

	got := s.getAll(s.newGet("/blog", nil), s.newGet("/blog?search=primer", nil))
	for _, r := range got {
		require.NoError(t, r.err)
		assert.Equal(t, http.StatusOK, r.status)
		assert.Contains(t, r.body, "Paid Search Primer")
	}
}

func TestScriptedRefreshSupersedesOlderOne(t *testing.T) {
	s := newSiteVia(t, holdAction("getPosts", 2))
	s.seedPost("Email Cadence", "Weekly is plenty.", models.StatusPublished, nil)
	s.loginAdmin()

	tab := http.Header{"X-Brightline-Tab": {"tab-1"}}
	got := s.getAll(s.newGet("/admin/posts?search=e", tab), s.newGet("/admin/posts?search=email", tab))

	var statuses []int
	for _, r := range got {
		require.NoError(t, r.err)
		statuses = append(statuses, r.status)
		if r.status == http.StatusNoContent {
			assert.Empty(t, r.body)
		}
	}
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusNoContent}, statuses)
}

func TestCategoriesAdmin(t *testing.T) {
	s := newSite(t)
	s.loginAdmin()

	resp, _ := s.post("/admin/categories", url.Values{"name": {"Design"}, "description": {"Visual work"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := s.get("/admin/categories")
	assert.Contains(t, body, "Category created")
	assert.Contains(t, body, `value="Design"`)

	s.post("/admin/categories", url.Values{"name": {"Design"}})
	_, body = s.get("/admin/categories")
	assert.Contains(t, body, "Category slug already exists")

	s.post("/admin/categories", url.Values{"name": {""}})
	_, body = s.get("/admin/categories")
	assert.Contains(t, body, "cannot be blank")

	cats, err := s.backend.Service.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	id := itoa(cats[0].ID)

	s.post("/admin/categories/"+id, url.Values{"name": {"Brand Design"}, "slug": {"brand-design"}})
	_, body = s.get("/admin/categories")
	assert.Contains(t, body, "Category updated")
	assert.Contains(t, body, `value="brand-design"`)

	s.post("/admin/categories/"+id+"/delete", url.Values{})
	_, body = s.get("/admin/categories")
	assert.Contains(t, body, "Category deleted")
	assert.Contains(t, body, "No categories yet.")
}

func TestPublicPages(t *testing.T) {
	s := newSite(t)
	cat, err := s.backend.Service.CreateCategory(context.Background(), backend.CategoryInput{Name: "SEO"})
	require.NoError(t, err)
	for i := 1; i <= 12; i++ {
		s.seedPost("Post "+itoa(int64(i)), "Body.", models.StatusPublished, &cat.ID)
	}
	s.seedPost("Secret Draft", "Hidden.", models.StatusDraft, nil)

	resp, body := s.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Featured articles")

	resp, body = s.get("/blog")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "Secret Draft")
	assert.Contains(t, body, `aria-current="page">1</a>`)
	assert.Contains(t, body, `/blog/category/seo`)

	_, body = s.get("/blog?page=2")
	assert.Contains(t, body, `aria-current="page">2</a>`)

	resp, body = s.get("/blog/category/seo")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>SEO</h1>")

	resp, _ = s.get("/blog/category/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.get("/blog/no-such-post")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Post not found")

	resp, _ = s.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	s := newSite(t)
	resp, body := s.get("/health/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, _ = s.get("/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down, err := web.New(web.Config{BackendURL: "http://127.0.0.1:1/api", RequestTimeout: time.Second}, testutil.TestKV(t), testutil.DiscardLogger())
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	down.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRejectsBadBackendURL(t *testing.T) {
	_, err := web.New(web.Config{BackendURL: "ftp://example.com"}, testutil.TestKV(t), nil)
	assert.Error(t, err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
