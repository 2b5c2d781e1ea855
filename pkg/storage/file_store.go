package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps objects on local disk under a base directory. It is meant for
// development; "presigned" URLs are plain links under baseURL and do not expire.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes an object to disk.
func (f *FileStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// PresignGet returns a link served by the /files/ route.
func (f *FileStore) PresignGet(_ context.Context, key string, _ time.Duration, downloadName string) (string, error) {
	if _, err := f.resolve(key); err != nil {
		return "", err
	}
	link := f.baseURL + "/files/" + strings.TrimLeft(path.Clean("/"+key), "/")
	if downloadName != "" {
		link += "?download=" + url.QueryEscape(downloadName)
	}
	return link, nil
}

// Delete removes an object. Removing a missing key succeeds.
func (f *FileStore) Delete(_ context.Context, key string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Handler serves stored objects. Mount it under "/files/" with the prefix
// stripped. A download query parameter turns the response into an attachment.
func (f *FileStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(f.basePath))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if name := strings.TrimSpace(r.URL.Query().Get("download")); name != "" {
			w.Header().Set("Content-Disposition", contentDisposition(name))
		}
		files.ServeHTTP(w, r)
	})
}

func (f *FileStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("object key is required")
	}
	return filepath.Join(f.basePath, filepath.FromSlash(clean)), nil
}
