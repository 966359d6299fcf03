// Copyright 2025 The Launcher Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fetch downloads task input sources into a per-execution sandbox.
// Plain HTTP(S) URLs are streamed with size and content-type enforcement;
// bucket-hosted objects go through S3 credentials; agent-output URLs resolve
// to a prior execution's persisted result.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/agenthub/launcher/pkg/config"
	"github.com/agenthub/launcher/pkg/sandbox"
	"github.com/agenthub/launcher/pkg/store"
)

const (
	chunkSize    = 8 * 1024
	agentScheme  = "agent-output"
	maxBytesHard = 50 * 1024 * 1024
)

// allowedContentTypes is the download allow-list, checked against the
// Content-Type header with parameters stripped.
var allowedContentTypes = map[string]bool{
	"text/plain":       true,
	"text/html":        true,
	"text/markdown":    true,
	"text/csv":         true,
	"application/json": true,
	"application/xml":  true,
	"application/pdf":  true,
	"image/jpeg":       true,
	"image/png":        true,
	"image/gif":        true,
	"image/webp":       true,
	"image/tiff":       true,
	"image/bmp":        true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
}

var extensionByContentType = map[string]string{
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/markdown":    ".md",
	"text/csv":         ".csv",
	"application/json": ".json",
	"application/xml":  ".xml",
	"application/pdf":  ".pdf",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/tiff":       ".tiff",
	"image/bmp":        ".bmp",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
}

// Result describes a file placed into the sandbox.
type Result struct {
	FilePath    string
	ContentType string
	FileType    sandbox.FileKind
	SizeBytes   int64
	Filename    string
	SourceURL   string
}

// ExecutionSource resolves prior executions for agent-output URLs.
type ExecutionSource interface {
	GetExecution(ctx context.Context, id string) (*store.AgentTaskExecution, error)
}

// ObjectStore downloads bucket objects, bypassing plain-HTTP validation.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
}

// Fetcher downloads input sources. Safe for concurrent use.
type Fetcher struct {
	cfg        config.FetchConfig
	client     *http.Client
	objects    ObjectStore
	executions ExecutionSource
	logger     *slog.Logger
}

func New(cfg config.FetchConfig, executions ExecutionSource, objects ObjectStore, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
			},
		},
		objects:    objects,
		executions: executions,
		logger:     logger,
	}
}

// Fetch downloads one input source into the sandbox.
func (f *Fetcher) Fetch(ctx context.Context, sb *sandbox.Sandbox, src store.InputSource) (*Result, error) {
	u, err := f.validateURL(src.URL)
	if err != nil {
		return nil, err
	}

	switch {
	case u.Scheme == agentScheme:
		return f.fetchAgentOutput(ctx, sb, u)
	case u.Scheme == "s3" || f.isBucketURL(u):
		res, err := f.fetchS3(ctx, sb, u)
		if err == nil {
			return res, nil
		}
		if u.Scheme == "s3" {
			return nil, err
		}
		// Virtual-hosted bucket URLs can still be world-readable.
		f.logger.Warn("S3 fetch failed, falling back to HTTP", "url", src.URL, "error", err)
		return f.fetchHTTP(ctx, sb, u)
	default:
		return f.fetchHTTP(ctx, sb, u)
	}
}

// validateURL enforces the scheme allow-list and, in production, rejects
// loopback and RFC1918 hosts.
func (f *Fetcher) validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &UnsafeURLError{URL: rawURL, Reason: "unparseable"}
	}

	switch u.Scheme {
	case "http", "https", "s3", agentScheme:
	default:
		return nil, &UnsafeURLError{URL: rawURL, Reason: fmt.Sprintf("scheme %q not allowed", u.Scheme)}
	}

	if f.cfg.Production && (u.Scheme == "http" || u.Scheme == "https") {
		host := strings.ToLower(u.Hostname())
		switch {
		case host == "localhost", host == "127.0.0.1", host == "0.0.0.0":
			return nil, &UnsafeURLError{URL: rawURL, Reason: "loopback host"}
		case strings.HasPrefix(host, "10."),
			strings.HasPrefix(host, "172."),
			strings.HasPrefix(host, "192.168."):
			return nil, &UnsafeURLError{URL: rawURL, Reason: "private network host"}
		}
	}

	return u, nil
}

func (f *Fetcher) isBucketURL(u *url.URL) bool {
	return f.cfg.S3Bucket != "" &&
		strings.EqualFold(u.Hostname(), f.cfg.S3Bucket+".s3.amazonaws.com")
}

func (f *Fetcher) fetchHTTP(ctx context.Context, sb *sandbox.Sandbox, u *url.URL) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: u.String()}
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType != "" && !allowedContentTypes[strings.ToLower(contentType)] {
		return nil, &ContentTypeError{ContentType: contentType}
	}

	maxBytes := f.maxBytes()
	if resp.ContentLength > maxBytes {
		return nil, &TooLargeError{Limit: maxBytes}
	}

	filename := sandbox.SafeFilename(u.String(), sandbox.DefaultMaxFilenameLen)
	if filepath.Ext(filename) == "" {
		if ext, ok := extensionByContentType[strings.ToLower(contentType)]; ok {
			filename += ext
		}
	}

	path := sb.Path(filename)
	size, err := streamToFile(resp.Body, path, maxBytes)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("downloaded input source", "url", u.String(), "bytes", size, "content_type", contentType)

	return &Result{
		FilePath:    path,
		ContentType: contentType,
		FileType:    sandbox.ClassifyByExtension(path),
		SizeBytes:   size,
		Filename:    filename,
		SourceURL:   u.String(),
	}, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, sb *sandbox.Sandbox, u *url.URL) (*Result, error) {
	if f.objects == nil {
		return nil, fmt.Errorf("S3 credentials are not configured")
	}

	bucket := f.cfg.S3Bucket
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme == "s3" {
		bucket = u.Host
	}

	filename := sandbox.SafeFilename(u.String(), sandbox.DefaultMaxFilenameLen)
	path := sb.Path(filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox file: %w", err)
	}
	defer file.Close()

	size, err := f.objects.Download(ctx, bucket, key, file)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("S3 download failed: %w", err)
	}
	if size > f.maxBytes() {
		os.Remove(path)
		return nil, &TooLargeError{Limit: f.maxBytes()}
	}

	return &Result{
		FilePath:    path,
		ContentType: mime.TypeByExtension(filepath.Ext(filename)),
		FileType:    sandbox.ClassifyByExtension(path),
		SizeBytes:   size,
		Filename:    filename,
		SourceURL:   u.String(),
	}, nil
}

func (f *Fetcher) fetchAgentOutput(ctx context.Context, sb *sandbox.Sandbox, u *url.URL) (*Result, error) {
	executionID := u.Host
	if executionID == "" {
		executionID = strings.TrimPrefix(u.Opaque, "//")
	}

	execution, err := f.executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, &NotFoundError{ExecutionID: executionID, Reason: "execution not found"}
	}

	result, ok := execution.Result()
	if !ok {
		return nil, &NotFoundError{ExecutionID: executionID, Reason: "execution has no result"}
	}

	filename := fmt.Sprintf("agent_output_%s.txt", executionID)
	path := sb.Path(filename)
	if err := os.WriteFile(path, []byte(result), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write agent output: %w", err)
	}

	return &Result{
		FilePath:    path,
		ContentType: "text/plain",
		FileType:    sandbox.KindText,
		SizeBytes:   int64(len(result)),
		Filename:    filename,
		SourceURL:   u.String(),
	}, nil
}

func (f *Fetcher) maxBytes() int64 {
	max := int64(f.cfg.MaxFileSizeMB) * 1024 * 1024
	if max <= 0 || max > maxBytesHard {
		max = maxBytesHard
	}
	return max
}

// streamToFile copies the body to disk in fixed-size chunks, deleting the
// partial file the moment the cumulative size crosses the cap.
func streamToFile(body io.Reader, path string, maxBytes int64) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create sandbox file: %w", err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxBytes {
				file.Close()
				os.Remove(path)
				return 0, &TooLargeError{Limit: maxBytes}
			}
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				os.Remove(path)
				return 0, fmt.Errorf("failed to write sandbox file: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			os.Remove(path)
			return 0, fmt.Errorf("network error during download: %w", readErr)
		}
	}

	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close sandbox file: %w", err)
	}
	return written, nil
}
