package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/models"
)

const maxJSONBytes = 1 << 20

type action struct {
	methods []string
	auth    bool
	handle  http.HandlerFunc
}

// Handler dispatches ?action= requests.
type Handler struct {
	svc     *Service
	uploads *Uploads
	logger  *slog.Logger
	actions map[string]action
}

// NewHandler creates the action dispatcher.
func NewHandler(svc *Service, uploads *Uploads, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, uploads: uploads, logger: logger}
	get := []string{http.MethodGet}
	post := []string{http.MethodPost}
	put := []string{http.MethodPost, http.MethodPut}
	del := []string{http.MethodDelete, http.MethodPost}
	h.actions = map[string]action{
		"health":           {get, false, h.health},
		"login":            {post, false, h.login},
		"getPosts":         {get, false, h.getPosts},
		"getPost":          {get, false, h.getPost},
		"getCategoryPosts": {get, false, h.getCategoryPosts},
		"searchPosts":      {get, false, h.searchPosts},
		"getFeaturedPosts": {get, false, h.getFeaturedPosts},
		"getRelatedPosts":  {get, false, h.getRelatedPosts},
		"getCategories":    {get, false, h.getCategories},
		"getStats":         {get, true, h.getStats},
		"createPost":       {post, true, h.createPost},
		"updatePost":       {put, true, h.updatePost},
		"deletePost":       {del, true, h.deletePost},
		"uploadImage":      {post, true, h.uploadImage},
		"createCategory":   {post, true, h.createCategory},
		"updateCategory":   {put, true, h.updateCategory},
		"deleteCategory":   {del, true, h.deleteCategory},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("action")
	a, ok := h.actions[name]
	if !ok {
		writeFail(w, http.StatusNotFound, "Unknown action")
		return
	}
	allowed := false
	for _, m := range a.methods {
		if r.Method == m {
			allowed = true
			break
		}
	}
	if !allowed {
		w.Header().Set("Allow", strings.Join(a.methods, ", "))
		writeFail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.auth && UserFrom(r.Context()) == nil {
		writeFail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	a.handle(w, r)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.db.Ping(r.Context()); err != nil {
		writeFail(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()}, "")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeFail(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login failed", slog.String("username", req.Username))
		if errors.Is(err, apperr.ErrUnauthorized) {
			writeFail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, h.logger, "login", err, "")
		return
	}
	writeOK(w, http.StatusOK, sess, "Login successful")
}

func (h *Handler) getPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := PostFilter{
		Status:       models.PostStatus(q.Get("status")),
		CategorySlug: q.Get("category"),
		Search:       strings.TrimSpace(q.Get("search")),
		Page:         queryInt(r, "page"),
		Limit:        queryInt(r, "limit"),
	}
	if UserFrom(r.Context()) == nil {
		f.Status = models.StatusPublished
	} else if f.Status != "" && !f.Status.Valid() {
		writeFail(w, http.StatusBadRequest, "Invalid status")
		return
	}
	posts, page, err := h.svc.ListPosts(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, "getPosts", err, "")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"posts": posts, "pagination": page}, "")
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	authed := UserFrom(r.Context()) != nil
	var (
		post *models.Post
		err  error
	)
	if slug := r.URL.Query().Get("slug"); slug != "" {
		post, err = h.svc.GetPostBySlug(r.Context(), slug, authed)
	} else if id, ok := queryID(r); ok {
		post, err = h.svc.GetPost(r.Context(), id, authed)
	} else {
		writeFail(w, http.StatusBadRequest, "Post slug or id is required")
		return
	}
	if err != nil {
		writeError(w, h.logger, "getPost", err, "Post not found")
		return
	}
	writeOK(w, http.StatusOK, post, "")
}

func (h *Handler) getCategoryPosts(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeFail(w, http.StatusBadRequest, "Category slug is required")
		return
	}
	cat, posts, page, err := h.svc.CategoryPosts(r.Context(), slug, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, "getCategoryPosts", err, "Category not found")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"category": cat, "posts": posts, "pagination": page}, "")
}

func (h *Handler) searchPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.SearchPosts(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, "searchPosts", err, "")
		return
	}
	writeOK(w, http.StatusOK, posts, "")
}

func (h *Handler) getFeaturedPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.FeaturedPosts(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, "getFeaturedPosts", err, "")
		return
	}
	writeOK(w, http.StatusOK, posts, "")
}

func (h *Handler) getRelatedPosts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("post_id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "post_id is required")
		return
	}
	posts, err := h.svc.RelatedPosts(r.Context(), id, queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, "getRelatedPosts", err, "Post not found")
		return
	}
	writeOK(w, http.StatusOK, posts, "")
}

func (h *Handler) getCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, h.logger, "getCategories", err, "")
		return
	}
	writeOK(w, http.StatusOK, cats, "")
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, "getStats", err, "")
		return
	}
	writeOK(w, http.StatusOK, stats, "")
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	in, ok := h.postInput(w, r)
	if !ok {
		return
	}
	post, err := h.svc.CreatePost(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, "createPost", err, "Post not found")
		return
	}
	writeOK(w, http.StatusCreated, post, "Post created")
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	in, ok := h.postInput(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(firstNonEmpty(r.FormValue("id"), r.URL.Query().Get("id")), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "Post id is required")
		return
	}
	post, err := h.svc.UpdatePost(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, "updatePost", err, "Post not found")
		return
	}
	writeOK(w, http.StatusOK, post, "Post updated")
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		writeFail(w, http.StatusBadRequest, "Post id is required")
		return
	}
	if err := h.svc.DeletePost(r.Context(), id); err != nil {
		writeError(w, h.logger, "deletePost", err, "Post not found")
		return
	}
	writeOK(w, http.StatusOK, map[string]int64{"id": id}, "Post deleted")
}

// postInput parses the multipart post form and stores an attached
// featured_image.
func (h *Handler) postInput(w http.ResponseWriter, r *http.Request) (PostInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFail(w, http.StatusBadRequest, "File too large or invalid form")
		return PostInput{}, false
	}
	in := PostInput{
		Title:           r.FormValue("title"),
		Slug:            r.FormValue("slug"),
		Content:         r.FormValue("content"),
		Excerpt:         r.FormValue("excerpt"),
		Status:          models.PostStatus(r.FormValue("status")),
		MetaTitle:       r.FormValue("meta_title"),
		MetaDescription: r.FormValue("meta_description"),
		FeaturedImage:   r.FormValue("featured_image_url"),
		Tags:            strings.Split(r.FormValue("tags"), ","),
	}
	if v := r.FormValue("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid category_id")
			return PostInput{}, false
		}
		in.CategoryID = &id
	}

	file, header, err := r.FormFile("featured_image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeFail(w, http.StatusBadRequest, "Invalid featured_image")
		return PostInput{}, false
	default:
		defer file.Close()
		img, err := h.uploads.Save(file, header.Filename)
		if err != nil {
			writeError(w, h.logger, "upload", err, "")
			return PostInput{}, false
		}
		in.FeaturedImage = img.URL
	}
	return in, true
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFail(w, http.StatusBadRequest, "File too large or invalid form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeFail(w, http.StatusBadRequest, "Missing 'image' field in multipart form")
		return
	}
	defer file.Close()

	img, err := h.uploads.Save(file, header.Filename)
	if err != nil {
		writeError(w, h.logger, "uploadImage", err, "")
		return
	}
	writeOK(w, http.StatusCreated, img, "Image uploaded")
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if !decodeJSON(w, r, &in) {
		return
	}
	cat, err := h.svc.CreateCategory(r.Context(), in)
	if err != nil {
		writeCategoryError(w, h.logger, "createCategory", err)
		return
	}
	writeOK(w, http.StatusCreated, cat, "Category created")
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryInput
		ID int64 `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		if id, ok := queryID(r); ok {
			req.ID = id
		} else {
			writeFail(w, http.StatusBadRequest, "Category id is required")
			return
		}
	}
	cat, err := h.svc.UpdateCategory(r.Context(), req.ID, req.CategoryInput)
	if err != nil {
		writeCategoryError(w, h.logger, "updateCategory", err)
		return
	}
	writeOK(w, http.StatusOK, cat, "Category updated")
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r)
	if !ok {
		writeFail(w, http.StatusBadRequest, "Category id is required")
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		writeCategoryError(w, h.logger, "deleteCategory", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]int64{"id": id}, "Category deleted")
}

func writeCategoryError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	if errors.Is(err, apperr.ErrAlreadyExists) {
		writeFail(w, http.StatusConflict, "Category slug already exists")
		return
	}
	writeError(w, logger, action, err, "Category not found")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
