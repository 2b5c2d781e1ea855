package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStorePutPresignDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "http://localhost:8080/")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := "magazines/user-1/abc.pdf"
	if err := fs.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "magazines", "user-1", "abc.pdf"))
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("stored content = %q, err %v", data, err)
	}

	link, err := fs.PresignGet(ctx, key, time.Minute, "")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if link != "http://localhost:8080/files/magazines/user-1/abc.pdf" {
		t.Fatalf("unexpected link %q", link)
	}
	link, err = fs.PresignGet(ctx, key, time.Minute, "Spring Issue.pdf")
	if err != nil || !strings.HasSuffix(link, "?download=Spring+Issue.pdf") {
		t.Fatalf("unexpected download link %q, err %v", link, err)
	}

	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestFileStoreKeepsKeysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := fs.Put(context.Background(), "../../escape.pdf", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.pdf")); err != nil {
		t.Fatalf("expected traversal key to be confined to root: %v", err)
	}
	if err := fs.Put(context.Background(), "  ", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(" ", ""); err == nil {
		t.Fatalf("expected missing base path to fail")
	}
}

func TestFileStoreHandlerServesObjects(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := fs.Put(context.Background(), "covers/u1/c.png", strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	h := http.StripPrefix("/files/", fs.Handler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/covers/u1/c.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatalf("inline request must not be an attachment")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/covers/u1/c.png?download=Cover+Art.png", nil))
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename*=UTF-8''Cover%20Art.png" {
		t.Fatalf("unexpected disposition %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/covers/u1/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("directory listing should be hidden, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/files/covers/u1/c.png", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
