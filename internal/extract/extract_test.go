package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wharf/internal/logging"
	"wharf/internal/services"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(t.TempDir(), "payload.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

func TestExtractUnpacksEntries(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"episode.mkv":          "video bytes",
		"subs/episode.eng.srt": "subtitle bytes",
	})
	dest := t.TempDir()

	result, err := New(logging.NewNop()).Extract(context.Background(), archive, dest)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(result.Files), result.Files)
	}
	got, err := os.ReadFile(filepath.Join(dest, "subs", "episode.eng.srt"))
	if err != nil {
		t.Fatalf("read nested entry: %v", err)
	}
	if string(got) != "subtitle bytes" {
		t.Fatalf("unexpected nested content %q", got)
	}
	want := int64(len("video bytes") + len("subtitle bytes"))
	if result.Bytes != want {
		t.Fatalf("reported %d bytes, expected %d", result.Bytes, want)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Fatalf("archive should be left in place: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../evil.txt": "nope",
	})
	dest := t.TempDir()

	_, err := New(logging.NewNop()).Extract(context.Background(), archive, dest)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); !os.IsNotExist(statErr) {
		t.Fatal("traversal entry escaped the destination")
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	archive := writeZip(t, nil)

	_, err := New(logging.NewNop()).Extract(context.Background(), archive, t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestExtractNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.zip")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := New(logging.NewNop()).Extract(context.Background(), path, t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestExtractHonorsCancellation(t *testing.T) {
	archive := writeZip(t, map[string]string{"file.txt": "content"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(logging.NewNop()).Extract(ctx, archive, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestIsArchive(t *testing.T) {
	cases := []struct {
		filename string
		want     bool
	}{
		{"payload.zip", true},
		{"PAYLOAD.ZIP", true},
		{"episode.mkv", false},
		{"archive.rar", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsArchive(tc.filename); got != tc.want {
			t.Fatalf("IsArchive(%q) = %v, expected %v", tc.filename, got, tc.want)
		}
	}
}
