// Package sandbox manages the ephemeral per-execution workspace used for
// input source downloads. Each sandbox is a fresh temporary directory owned
// by exactly one execution and removed when the execution finishes.
package sandbox

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMaxFilenameLen bounds filenames derived from source URLs.
	DefaultMaxFilenameLen = 100

	dirPrefix = "agent_task_sandbox_"
)

// SandboxError reports a failure creating or using the sandbox workspace.
type SandboxError struct {
	Op  string
	Err error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}

// Sandbox is an isolated temporary directory. Callers must invoke Close to
// remove it; Close is safe to call multiple times.
type Sandbox struct {
	dir    string
	closed bool
}

// New creates a fresh sandbox directory under the system temp root.
func New(baseName string) (*Sandbox, error) {
	prefix := dirPrefix
	if baseName != "" {
		prefix += sanitize(baseName) + "_"
	}

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, &SandboxError{Op: "create", Err: err}
	}

	return &Sandbox{dir: dir}, nil
}

// Dir returns the absolute path of the sandbox directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Path joins the given filename onto the sandbox directory.
func (s *Sandbox) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Close removes the sandbox directory and everything in it.
func (s *Sandbox) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

// With runs fn inside a fresh sandbox and guarantees cleanup on every exit
// path, including panics inside fn.
func With(baseName string, fn func(*Sandbox) error) error {
	sb, err := New(baseName)
	if err != nil {
		return err
	}
	defer sb.Close()
	return fn(sb)
}

// SafeFilename derives a filesystem-safe filename from a URL. The final path
// segment is sanitized, truncated to leave room for a random suffix, and made
// unique with an 8-character suffix so concurrent downloads never collide.
func SafeFilename(rawURL string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}

	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		if segment := filepath.Base(u.Path); segment != "" && segment != "/" && segment != "." {
			name = segment
		}
	}

	name = sanitize(name)

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	// Leave room for "_" plus the 8-char suffix.
	budget := maxLen - 9 - len(ext)
	if budget < 1 {
		budget = 1
	}
	if len(base) > budget {
		base = base[:budget]
	}

	suffix := uuid.NewString()[:8]
	return base + "_" + suffix + ext
}

// ValidateFileSize reports whether the file at path exists and is within
// maxMB megabytes.
func ValidateFileSize(path string, maxMB int) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() <= int64(maxMB)*1024*1024
}

// FileKind is a coarse classification used to pick a processing strategy
// when the content type is missing or unhelpful.
type FileKind string

const (
	KindText     FileKind = "text"
	KindImage    FileKind = "image"
	KindDocument FileKind = "document"
	KindUnknown  FileKind = "unknown"
)

// ClassifyByExtension maps a file extension to a coarse kind.
func ClassifyByExtension(path string) FileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".html", ".htm", ".xml", ".rst", ".adoc",
		".csv", ".tsv", ".json", ".jsonl", ".yaml", ".yml", ".log":
		return KindText
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tiff", ".bmp":
		return KindImage
	case ".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx":
		return KindDocument
	default:
		return KindUnknown
	}
}

func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
