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

package preprocess

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agenthub/launcher/pkg/fetch"
	"github.com/agenthub/launcher/pkg/store"
)

const (
	textPreviewLen  = 500
	imagePreviewLen = 200
)

// Processed is one input source after preprocessing. Raw-passthrough files
// carry BinaryData and MediaType instead of text content.
type Processed struct {
	Source           store.InputSource
	Filename         string
	ContentType      string
	SizeBytes        int64
	Strategy         Strategy
	ProcessedContent string
	ContentPreview   string
	BinaryData       []byte
	MediaType        string
	Raw              bool
	Err              string
}

// Batch is the preprocessed form of all input sources of one execution.
type Batch struct {
	Sources     []*Processed
	HasRawFiles bool
}

// Processor converts downloaded files into prompt content. Extraction
// failures degrade to text placeholders instead of failing the execution.
type Processor struct {
	logger *slog.Logger
}

func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger}
}

// Process handles one fetched file according to its strategy.
func (p *Processor) Process(src store.InputSource, fetched *fetch.Result) *Processed {
	out := &Processed{
		Source:      src,
		Filename:    fetched.Filename,
		ContentType: fetched.ContentType,
		SizeBytes:   fetched.SizeBytes,
		Strategy:    ChooseStrategy(fetched.ContentType, fetched.FilePath),
	}

	switch out.Strategy {
	case StrategyAlwaysText:
		p.processText(out, fetched.FilePath)
	case StrategyStructuredData:
		p.processStructured(out, fetched.FilePath)
	case StrategyBinaryCapable:
		p.processBinaryCapable(out, fetched.FilePath)
	case StrategyDocumentProcessing:
		p.processDocument(out, fetched.FilePath)
	default:
		p.processUnknown(out, fetched.FilePath)
	}

	out.ContentPreview = p.preview(out)
	return out
}

func (p *Processor) processText(out *Processed, path string) {
	content, err := ReadText(path)
	if err != nil {
		p.fail(out, path, err)
		return
	}
	out.ProcessedContent = content
}

func (p *Processor) processStructured(out *Processed, path string) {
	content, err := ReadText(path)
	if err != nil {
		p.fail(out, path, err)
		return
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		out.ProcessedContent = SummarizeJSON(content)
	case ".tsv":
		out.ProcessedContent = SummarizeCSV(content, '\t')
	default:
		out.ProcessedContent = SummarizeCSV(content, ',')
	}
}

func (p *Processor) processBinaryCapable(out *Processed, path string) {
	if out.Source.SkipPreprocessing {
		data, err := os.ReadFile(path)
		if err != nil {
			p.fail(out, path, err)
			return
		}
		out.Raw = true
		out.BinaryData = data
		out.MediaType = mediaType(out.ContentType, path)
		return
	}

	if isImage(out.ContentType, path) {
		// Without multimodal passthrough an image is only described.
		out.ProcessedContent = fmt.Sprintf("[image file: %s (%s, %d bytes)]",
			out.Filename, mediaType(out.ContentType, path), out.SizeBytes)
		return
	}

	content, err := ExtractPDFText(path)
	if err != nil {
		p.fail(out, path, err)
		return
	}
	out.ProcessedContent = content
}

func (p *Processor) processDocument(out *Processed, path string) {
	var content string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		content, err = ExtractDocxText(path)
	case ".xlsx":
		content, err = ExtractXlsxText(path)
	default:
		err = fmt.Errorf("no converter for %s", filepath.Ext(path))
	}

	if err != nil {
		p.fail(out, path, err)
		return
	}
	out.ProcessedContent = content
}

func (p *Processor) processUnknown(out *Processed, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		p.fail(out, path, err)
		return
	}

	if content := decodeText(raw); printableRatio(content) > 0.8 {
		out.ProcessedContent = content
		return
	}

	out.ProcessedContent = fmt.Sprintf("[binary file: %s (%d bytes)]", out.Filename, out.SizeBytes)
}

// fail records an extraction failure as a text placeholder so the execution
// continues with the other sources.
func (p *Processor) fail(out *Processed, path string, err error) {
	kind := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if kind == "" {
		kind = "unknown"
	}
	out.Err = err.Error()
	out.ProcessedContent = fmt.Sprintf("[%s file: %s - extraction failed: %v]", kind, out.Filename, err)
	p.logger.Warn("input preprocessing failed", "file", out.Filename, "strategy", out.Strategy, "error", err)
}

func (p *Processor) preview(out *Processed) string {
	if out.Raw {
		return fmt.Sprintf("[raw %s file: %s (%d bytes)]", out.MediaType, out.Filename, out.SizeBytes)
	}
	limit := textPreviewLen
	if isImage(out.ContentType, out.Filename) {
		limit = imagePreviewLen
	}
	// Truncate on rune boundaries so a multibyte sequence is never split.
	runes := []rune(out.ProcessedContent)
	if len(runes) <= limit {
		return out.ProcessedContent
	}
	return string(runes[:limit]) + "..."
}

func printableRatio(s string) float64 {
	if s == "" {
		return 0
	}
	printable := 0
	total := 0
	for _, r := range s {
		total++
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 0xFFFD) {
			printable++
		}
	}
	return float64(printable) / float64(total)
}
