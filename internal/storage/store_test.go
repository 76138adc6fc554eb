package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPrepare(t *testing.T) {
	t.Parallel()

	t.Run("creates missing output directory", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "out")
		if err := New(root).Prepare(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to be a directory: %v", root, err)
		}
	})

	t.Run("clears existing output directory", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "out")
		if err := os.MkdirAll(filepath.Join(root, "css", "old"), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("stale"), 0600); err != nil {
			t.Fatal(err)
		}

		if err := New(root).Prepare(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty output directory, found %d entries", len(entries))
		}
	})

	t.Run("missing parent is an error", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "missing", "out")
		if err := New(root).Prepare(); !errors.Is(err, ErrParentMissing) {
			t.Errorf("expected ErrParentMissing, got %v", err)
		}
	})

	t.Run("file in the way is an error", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "out")
		if err := os.WriteFile(root, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := New(root).Prepare(); !errors.Is(err, ErrNotDirectory) {
			t.Errorf("expected ErrNotDirectory, got %v", err)
		}
	})

	t.Run("filesystem root is refused", func(t *testing.T) {
		t.Parallel()

		if err := New(string(filepath.Separator)).Prepare(); !errors.Is(err, ErrUnsafeOutput) {
			t.Errorf("expected ErrUnsafeOutput, got %v", err)
		}
	})
}

func TestWriteAndRead(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())

	if err := s.Write("blog/post/index.html", []byte("<p>post</p>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Read("blog/post/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<p>post</p>" {
		t.Errorf("Read() = %q", got)
	}
	if !s.Exists("blog/post/index.html") {
		t.Error("expected file to exist")
	}
	if s.Exists("blog/post") {
		t.Error("a directory is not a file")
	}

	if err := s.Write("blog/post/index.html", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Read("blog/post/index.html")
	if string(got) != "v2" {
		t.Errorf("expected overwrite, got %q", got)
	}

	entries, err := os.ReadDir(s.Path("blog/post"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no temporary files left behind, found %d entries", len(entries))
	}
}

func TestWriteRejectsEscapes(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	for _, rel := range []string{"../x.html", "/etc/passwd", "a/../../x", ""} {
		if err := s.Write(rel, []byte("x")); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Write(%q) = %v, expected ErrOutsideRoot", rel, err)
		}
	}
	if _, err := s.Read("../x"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Read() = %v, expected ErrOutsideRoot", err)
	}
}
