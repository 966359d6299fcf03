// Package preprocess turns downloaded input files into prompt-ready text.
// Each file gets a processing strategy from its content type and extension;
// binary-capable files may instead pass through raw for multimodal prompts.
package preprocess

import (
	"path/filepath"
	"strings"
)

// Strategy selects how a file is converted to prompt content.
type Strategy string

const (
	// StrategyAlwaysText reads the file as text with an encoding cascade.
	StrategyAlwaysText Strategy = "always_text"
	// StrategyStructuredData parses the file and emits a summary.
	StrategyStructuredData Strategy = "structured_data"
	// StrategyBinaryCapable extracts text, or passes raw bytes through when
	// the source requests it.
	StrategyBinaryCapable Strategy = "binary_capable"
	// StrategyDocumentProcessing converts office documents to text; raw
	// passthrough is never allowed.
	StrategyDocumentProcessing Strategy = "document_processing"
	// StrategyUnknown attempts a best-effort text read.
	StrategyUnknown Strategy = "unknown"
)

var strategyByContentType = map[string]Strategy{
	"text/plain":       StrategyAlwaysText,
	"text/html":        StrategyAlwaysText,
	"text/markdown":    StrategyAlwaysText,
	"application/xml":  StrategyAlwaysText,
	"text/csv":         StrategyStructuredData,
	"application/json": StrategyStructuredData,
	"application/pdf":  StrategyBinaryCapable,
	"image/jpeg":       StrategyBinaryCapable,
	"image/png":        StrategyBinaryCapable,
	"image/gif":        StrategyBinaryCapable,
	"image/webp":       StrategyBinaryCapable,
	"image/tiff":       StrategyBinaryCapable,
	"image/bmp":        StrategyBinaryCapable,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   StrategyDocumentProcessing,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": StrategyDocumentProcessing,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         StrategyDocumentProcessing,
	"application/msword":            StrategyDocumentProcessing,
	"application/vnd.ms-excel":      StrategyDocumentProcessing,
	"application/vnd.ms-powerpoint": StrategyDocumentProcessing,
}

var strategyByExtension = map[string]Strategy{
	".txt":      StrategyAlwaysText,
	".md":       StrategyAlwaysText,
	".markdown": StrategyAlwaysText,
	".html":     StrategyAlwaysText,
	".htm":      StrategyAlwaysText,
	".xml":      StrategyAlwaysText,
	".rst":      StrategyAlwaysText,
	".adoc":     StrategyAlwaysText,
	".log":      StrategyAlwaysText,
	".csv":      StrategyStructuredData,
	".tsv":      StrategyStructuredData,
	".json":     StrategyStructuredData,
	".jsonl":    StrategyStructuredData,
	".pdf":      StrategyBinaryCapable,
	".jpg":      StrategyBinaryCapable,
	".jpeg":     StrategyBinaryCapable,
	".png":      StrategyBinaryCapable,
	".gif":      StrategyBinaryCapable,
	".webp":     StrategyBinaryCapable,
	".tiff":     StrategyBinaryCapable,
	".bmp":      StrategyBinaryCapable,
	".docx":     StrategyDocumentProcessing,
	".doc":      StrategyDocumentProcessing,
	".pptx":     StrategyDocumentProcessing,
	".ppt":      StrategyDocumentProcessing,
	".xlsx":     StrategyDocumentProcessing,
	".xls":      StrategyDocumentProcessing,
}

// ChooseStrategy picks the processing strategy for a file. The content type
// wins when known; the extension is the fallback.
func ChooseStrategy(contentType, path string) Strategy {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if s, ok := strategyByContentType[ct]; ok {
		return s
	}
	if s, ok := strategyByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return s
	}
	return StrategyUnknown
}

func isImage(contentType, path string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tiff", ".bmp":
		return true
	}
	return false
}

func mediaType(contentType, path string) string {
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	}
	return "application/octet-stream"
}
