package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithRemovesDirectoryOnSuccess(t *testing.T) {
	var dir string
	err := With("test", func(sb *Sandbox) error {
		dir = sb.Dir()
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("sandbox dir should exist during callback: %v", err)
		}
		return os.WriteFile(sb.Path("a.txt"), []byte("hello"), 0o644)
	})
	if err != nil {
		t.Fatalf("With() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("sandbox dir should be removed after With, stat err = %v", err)
	}
}

func TestWithRemovesDirectoryOnError(t *testing.T) {
	sentinel := errors.New("boom")
	var dir string
	err := With("test", func(sb *Sandbox) error {
		dir = sb.Dir()
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("sandbox dir should be removed after failed With, stat err = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sb, err := New("test")
	if err != nil {
		t.Fatal(err)
	}
	if err := sb.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sb.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantExt string
	}{
		{"simple", "https://example.com/report.pdf", ".pdf"},
		{"query string ignored", "https://example.com/data.csv?token=abc", ".csv"},
		{"no path", "https://example.com/", ""},
		{"unsafe characters", "https://example.com/my file (1).txt", ".txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeFilename(tt.url, 100)
			if filepath.Ext(got) != tt.wantExt {
				t.Errorf("SafeFilename(%q) = %q, want extension %q", tt.url, got, tt.wantExt)
			}
			for _, r := range got {
				safe := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' ||
					r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_'
				if !safe {
					t.Errorf("SafeFilename(%q) = %q contains unsafe rune %q", tt.url, got, r)
				}
			}
		})
	}
}

func TestSafeFilenameUnique(t *testing.T) {
	a := SafeFilename("https://example.com/report.pdf", 100)
	b := SafeFilename("https://example.com/report.pdf", 100)
	if a == b {
		t.Errorf("expected unique filenames, got %q twice", a)
	}
}

func TestSafeFilenameTruncates(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("x", 300) + ".txt"
	got := SafeFilename(long, 100)
	if len(got) > 100 {
		t.Errorf("SafeFilename length = %d, want <= 100", len(got))
	}
	if filepath.Ext(got) != ".txt" {
		t.Errorf("extension lost in truncation: %q", got)
	}
}

func TestValidateFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	if !ValidateFileSize(path, 1) {
		t.Error("2KB file should pass a 1MB limit")
	}
	if ValidateFileSize(path, 0) {
		t.Error("2KB file should fail a 0MB limit")
	}
	if ValidateFileSize(filepath.Join(dir, "missing"), 1) {
		t.Error("missing file should fail validation")
	}
}

func TestClassifyByExtension(t *testing.T) {
	tests := []struct {
		path string
		want FileKind
	}{
		{"notes.md", KindText},
		{"data.JSON", KindText},
		{"photo.jpeg", KindImage},
		{"slides.pptx", KindDocument},
		{"report.pdf", KindDocument},
		{"blob.bin", KindUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyByExtension(tt.path); got != tt.want {
			t.Errorf("ClassifyByExtension(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
