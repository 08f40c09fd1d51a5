// Package importer publishes a directory of Markdown post files to the
// backend through the API client. It remembers the checksum and post id of
// every file so unchanged files are skipped on the next run.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/apperr"
	"github.com/starford/brightline/internal/checksum"
	"github.com/starford/brightline/internal/models"
	"github.com/starford/brightline/internal/parser"
	"github.com/starford/brightline/internal/storage"
)

// StateKey is the key/value entry that holds the import state.
const StateKey = "import_state"

const postExt = ".md"

// Change kinds passed to the OnChange callback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Backend is the part of the API client the importer uses.
type Backend interface {
	GetCategories(ctx context.Context) apiclient.Result[[]models.Category]
	CreateCategory(ctx context.Context, in apiclient.CategoryInput) apiclient.Result[models.Category]
	CreatePost(ctx context.Context, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post]
	UpdatePost(ctx context.Context, id int64, in apiclient.PostInput, image *apiclient.FilePart) apiclient.Result[models.Post]
	DeletePost(ctx context.Context, id int64) apiclient.Result[apiclient.Deleted]
	UploadImage(ctx context.Context, image apiclient.FilePart) apiclient.Result[apiclient.UploadedImage]
}

var _ Backend = (*apiclient.Client)(nil)

// ChangeFunc is called after a post was created, updated or deleted.
type ChangeFunc func(kind, path string, postID int64)

// Entry is the remembered state of one file.
type Entry struct {
	Checksum      string `json:"checksum"`
	PostID        int64  `json:"post_id"`
	ImageChecksum string `json:"image_checksum,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
}

// Report summarises one Sync.
type Report struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Failed    int
}

// Importer syncs post files into the backend. It is safe for concurrent
// use; syncs are serialised.
type Importer struct {
	files    storage.Files
	state    storage.Provider
	client   Backend
	logger   *slog.Logger
	prune    bool
	onChange ChangeFunc

	mu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithPrune deletes the posts of files that disappeared from the directory.
// Without it the posts stay and only the state entry is dropped.
func WithPrune(prune bool) Option {
	return func(im *Importer) {
		im.prune = prune
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = l
	}
}

// WithOnChange registers a callback for every applied change.
func WithOnChange(fn ChangeFunc) Option {
	return func(im *Importer) {
		im.onChange = fn
	}
}

// New creates an importer reading files and keeping its state in state.
func New(files storage.Files, state storage.Provider, client Backend, opts ...Option) *Importer {
	im := &Importer{files: files, state: state, client: client}
	for _, opt := range opts {
		opt(im)
	}
	if im.logger == nil {
		im.logger = slog.Default()
	}
	return im
}

// Sync walks the directory and brings the backend up to date:
//   - new and changed files are created or updated
//   - files removed from disk are forgotten (and their posts deleted with WithPrune)
func (im *Importer) Sync(ctx context.Context) (Report, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var rep Report
	files, err := im.files.List("", postExt)
	if err != nil {
		return rep, fmt.Errorf("importer: list: %w", err)
	}
	state, err := im.loadState(ctx)
	if err != nil {
		return rep, err
	}

	cats := newCategoryCache(im.client)
	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
		prev, known := state[f.Path]
		if known && prev.Checksum == f.Checksum && prev.PostID != 0 {
			rep.Unchanged++
			continue
		}

		data, err := im.files.Read(f.Path)
		if err != nil {
			im.logger.Warn("import: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		entry, kind, err := im.importFile(ctx, cats, f.Path, data, prev)
		if err != nil {
			im.logger.Warn("import: publish failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		state[f.Path] = entry
		if kind == KindCreated {
			rep.Created++
		} else {
			rep.Updated++
		}
		im.logger.Debug("import: published", slog.String("path", f.Path), slog.String("op", kind), slog.Int64("post_id", entry.PostID))
		im.notify(kind, f.Path, entry.PostID)
	}

	for p, entry := range state {
		if _, ok := disk[p]; ok {
			continue
		}
		if im.prune && entry.PostID != 0 {
			res := im.client.DeletePost(ctx, entry.PostID)
			if err := res.Err(); err != nil && !errors.Is(err, apperr.ErrNotFound) {
				im.logger.Warn("import: delete failed", slog.String("path", p), slog.String("error", err.Error()))
				rep.Failed++
				continue
			}
			rep.Deleted++
			im.notify(KindDeleted, p, entry.PostID)
		}
		delete(state, p)
		im.logger.Debug("import: removed stale", slog.String("path", p))
	}

	if err := im.saveState(ctx, state); err != nil {
		return rep, err
	}
	return rep, nil
}

// State returns the remembered entries keyed by file path.
func (im *Importer) State(ctx context.Context) (map[string]Entry, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.loadState(ctx)
}

func (im *Importer) notify(kind, p string, id int64) {
	if im.onChange != nil {
		im.onChange(kind, p, id)
	}
}

// importFile publishes one file. A remembered post that no longer exists on
// the backend is created again.
func (im *Importer) importFile(ctx context.Context, cats *categoryCache, p string, data []byte, prev Entry) (Entry, string, error) {
	doc, err := parser.Parse(data)
	if err != nil {
		return prev, "", err
	}
	entry := Entry{Checksum: checksum.Sum(data), PostID: prev.PostID}

	in, err := im.postInput(ctx, cats, p, doc, prev, &entry)
	if err != nil {
		return prev, "", err
	}

	if prev.PostID != 0 {
		res := im.client.UpdatePost(ctx, prev.PostID, in, nil)
		if res.Success {
			return entry, KindUpdated, nil
		}
		if err := res.Err(); !errors.Is(err, apperr.ErrNotFound) {
			return prev, "", err
		}
	}
	res := im.client.CreatePost(ctx, in, nil)
	if !res.Success {
		return prev, "", res.Err()
	}
	entry.PostID = res.Data.ID
	return entry, KindCreated, nil
}

func (im *Importer) postInput(ctx context.Context, cats *categoryCache, p string, doc *parser.Document, prev Entry, entry *Entry) (apiclient.PostInput, error) {
	title := doc.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(p), postExt)
	}
	status := models.PostStatus(strings.ToLower(strings.TrimSpace(doc.Meta.Status)))
	if status == "" {
		status = models.StatusDraft
	}
	if !status.Valid() {
		return apiclient.PostInput{}, fmt.Errorf("importer: %s: unknown status %q: %w", p, doc.Meta.Status, apperr.ErrInvalidInput)
	}

	in := apiclient.PostInput{
		Title:           title,
		Slug:            doc.Meta.Slug,
		Content:         doc.Body,
		Excerpt:         doc.Meta.Excerpt,
		Status:          status,
		MetaTitle:       doc.Meta.MetaTitle,
		MetaDescription: doc.Meta.MetaDescription,
		Tags:            doc.Tags,
	}

	if name := strings.TrimSpace(doc.Meta.Category); name != "" {
		id, err := cats.resolve(ctx, name)
		if err != nil {
			return in, err
		}
		in.CategoryID = &id
	}

	img, err := im.featuredImage(ctx, p, doc.Meta.FeaturedImage, prev)
	if err != nil {
		return in, err
	}
	in.FeaturedImage = img.ImageURL
	entry.ImageChecksum = img.ImageChecksum
	entry.ImageURL = img.ImageURL
	return in, nil
}

// featuredImage resolves the frontmatter image. URLs and absolute paths are
// used as they are; a path relative to the post file is uploaded once per
// content checksum.
func (im *Importer) featuredImage(ctx context.Context, p, ref string, prev Entry) (Entry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Entry{}, nil
	}
	if strings.HasPrefix(ref, "/") || strings.Contains(ref, "://") {
		return Entry{ImageURL: ref}, nil
	}

	rel := path.Join(path.Dir(p), filepath.ToSlash(ref))
	data, err := im.files.Read(rel)
	if err != nil {
		return Entry{}, fmt.Errorf("importer: read image %s: %w", rel, err)
	}
	sum := checksum.Sum(data)
	if sum == prev.ImageChecksum && prev.ImageURL != "" {
		return Entry{ImageChecksum: sum, ImageURL: prev.ImageURL}, nil
	}
	res := im.client.UploadImage(ctx, apiclient.FilePart{
		Filename: path.Base(rel),
		Content:  bytes.NewReader(data),
	})
	if !res.Success {
		return Entry{}, fmt.Errorf("importer: upload %s: %w", rel, res.Err())
	}
	return Entry{ImageChecksum: sum, ImageURL: res.Data.URL}, nil
}

func (im *Importer) loadState(ctx context.Context) (map[string]Entry, error) {
	raw, ok, err := im.state.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("importer: load state: %w", err)
	}
	state := make(map[string]Entry)
	if !ok || raw == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		im.logger.Warn("import: state unreadable, starting over", slog.String("error", err.Error()))
		return make(map[string]Entry), nil
	}
	return state, nil
}

func (im *Importer) saveState(ctx context.Context, state map[string]Entry) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("importer: encode state: %w", err)
	}
	if err := im.state.Set(ctx, StateKey, string(raw)); err != nil {
		return fmt.Errorf("importer: save state: %w", err)
	}
	return nil
}
