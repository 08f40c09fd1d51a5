package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/brightline/internal/apiclient"
)

const (
	maxAssetSize  = 10 << 20
	fetchTimeout  = 30 * time.Second
	maxRedirects  = 5
	metadataHost  = "metadata.google.internal"
	allowedImages = "png, jpg, jpeg, gif, webp"
)

var (
	// Extensions accepted by the backend's uploadImage, keyed by MIME type.
	imageTypes = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}

	unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// fetchFunc downloads rawURL and returns its bytes and the extension implied
// by its content type.
type fetchFunc func(ctx context.Context, rawURL string) ([]byte, string, error)

type uploadResult struct {
	URL           string `json:"url"`
	MarkdownImage string `json:"markdownImage"`
}

// asset is an image ready for upload.
type asset struct {
	name string
	data []byte
}

func (a asset) alt() string {
	return strings.TrimSuffix(a.name, filepath.Ext(a.name))
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a, err := s.loadAsset(ctx, rawURL, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := s.client.UploadImage(ctx, apiclient.FilePart{Filename: a.name, Content: bytes.NewReader(a.data)})
	if !res.Success {
		return failed(res), nil
	}
	s.logger.Info("mcp: asset uploaded", slog.String("name", a.name), slog.String("url", res.Data.URL))

	out, _ := json.Marshal(uploadResult{
		URL:           res.Data.URL,
		MarkdownImage: fmt.Sprintf("![%s](%s)", a.alt(), res.Data.URL),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// loadAsset reads the image behind rawURL, names it and checks that its bytes
// match the name's extension.
func (s *Server) loadAsset(ctx context.Context, rawURL, name string) (asset, error) {
	var (
		data []byte
		ext  string
		err  error
	)
	if strings.HasPrefix(rawURL, "data:") {
		data, ext, err = decodeDataURI(rawURL)
	} else {
		data, ext, err = s.fetch(ctx, rawURL)
	}
	if err != nil {
		return asset{}, err
	}
	if len(data) > maxAssetSize {
		return asset{}, fmt.Errorf("file too large: %d bytes (max %d)", len(data), maxAssetSize)
	}

	if name == "" {
		name = filenameFromURL(rawURL, ext)
	}
	a := asset{name: sanitizeFilename(name), data: data}
	if err := a.check(); err != nil {
		return asset{}, err
	}
	return a, nil
}

// check verifies the extension is an accepted image type and that the
// content sniffs as that type.
func (a asset) check() error {
	ext := strings.ToLower(filepath.Ext(a.name))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	known := false
	for _, e := range imageTypes {
		known = known || e == ext
	}
	if !known {
		return fmt.Errorf("unsupported file extension: %q (allowed: %s)", filepath.Ext(a.name), allowedImages)
	}

	detected := http.DetectContentType(a.data)
	if imageTypes[strings.Split(detected, ";")[0]] != ext {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: missing comma separator")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime, _, _ = strings.Cut(mime, ";")
	ext, ok := imageTypes[mime]
	if !ok {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads an image over http(s), refusing internal hosts on the
// first request and on every redirect.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if err := checkBlockedHost(u.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}

	mime, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, imageTypes[strings.TrimSpace(mime)], nil
}

// checkBlockedHost rejects loopback, private, link-local and cloud metadata
// addresses. Unresolvable names are left for the HTTP client to fail on.
func checkBlockedHost(host string) error {
	if host == metadataHost {
		return fmt.Errorf("blocked host: %s", host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return nil //nolint:nilerr // DNS failures surface from the request
		}
		ips = resolved
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("blocked host: internal address %s", host)
		}
	}
	return nil
}

// filenameFromURL takes the file name from the URL path, falling back to a
// random name with ext.
func filenameFromURL(rawURL, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	if !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
				return base
			}
		}
	}
	return uuid.NewString() + ext
}

// sanitizeFilename strips directories and replaces unsafe characters.
func sanitizeFilename(name string) string {
	name = unsafeFilename.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == ".." {
		return uuid.NewString()
	}
	return name
}
