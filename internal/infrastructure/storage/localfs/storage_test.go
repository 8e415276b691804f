package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := storage.Save(ctx, "manifests/nhs.manifest.json", strings.NewReader(`{"chunks":3}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := storage.Open(ctx, "manifests/nhs.manifest.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"chunks":3}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	storage, _ := New(t.TempDir())
	if _, err := storage.Open(context.Background(), "nope.jsonl"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	storage, _ := New(t.TempDir())
	if err := storage.Save(context.Background(), "../outside.json", strings.NewReader("x")); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	storage, _ := New(t.TempDir())
	rc, err := storage.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rc.Close()
}
