package backend

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/brightline/internal/checksum"
	"github.com/starford/brightline/internal/storage"
)

const (
	uploadsPrefix  = "/uploads/"
	maxUploadBytes = 10 << 20 // 10 MB
	sniffLen       = 512
)

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadedImage describes a stored image.
type UploadedImage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Uploads stores images in a directory and serves them under /uploads/.
type Uploads struct {
	dir   string
	files storage.Files
}

// NewUploads creates the uploads directory if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: create uploads dir: %w", err)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("backend: uploads storage: %w", err)
	}
	return &Uploads{dir: fs.Root(), files: fs}, nil
}

// Dir returns the absolute uploads directory.
func (u *Uploads) Dir() string {
	return u.dir
}

// Save checks that r holds an image and stores it under a content-addressed
// name that keeps the original extension. Identical uploads share a file.
func (u *Uploads) Save(r io.Reader, originalName string) (*UploadedImage, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := imageExts[ext]; !ok {
		return nil, invalid("image: unsupported file type %q.", ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("backend: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, invalid("image: file is empty.")
	}
	if len(data) > maxUploadBytes {
		return nil, invalid("image: file is larger than %d MB.", maxUploadBytes>>20)
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if ct := http.DetectContentType(head); !strings.HasPrefix(ct, "image/") {
		return nil, invalid("image: content is %s, not an image.", ct)
	}

	name := checksum.Short(data, 20) + ext
	if err := u.files.Write(name, data); err != nil {
		return nil, fmt.Errorf("backend: store upload: %w", err)
	}
	return &UploadedImage{Filename: name, Size: int64(len(data)), URL: uploadsPrefix + name}, nil
}

// safeName validates that name is a plain file name inside the uploads dir.
func (u *Uploads) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return filepath.Join(u.dir, cleaned), nil
}

// ServeFile handles GET /uploads/{filename}.
func (u *Uploads) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := u.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := u.files.Read(filepath.Base(abs))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ct, ok := imageExts[strings.ToLower(filepath.Ext(abs))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, filepath.Base(abs), time.Time{}, bytes.NewReader(data))
}
