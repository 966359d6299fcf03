package executor

import (
	"fmt"
	"strings"

	"github.com/agenthub/launcher/pkg/preprocess"
	"github.com/agenthub/launcher/pkg/store"
)

const sourcesHeader = "--- INPUT SOURCES ---"

var sourceSeparator = strings.Repeat("-", 50)

// sourceBlock formats one preprocessed input for the prompt.
func sourceBlock(index int, p *preprocess.Processed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source %d: %s\n", index, p.Source.URL)
	fmt.Fprintf(&b, "Source Type: %s\n", sourceType(p.Source))

	if p.Err != "" && p.ProcessedContent == "" {
		fmt.Fprintf(&b, "[Error processing %s URL: %s]\n", sourceType(p.Source), p.Source.URL)
		return b.String()
	}

	fmt.Fprintf(&b, "File Type: %s (%s)\n", fileType(p), p.ContentType)
	fmt.Fprintf(&b, "Filename: %s\n", p.Filename)

	if p.Raw {
		fmt.Fprintf(&b, "Description: [Raw file for multimodal processing: %s]\n", p.Filename)
	} else {
		fmt.Fprintf(&b, "Content: %s\n", p.ProcessedContent)
	}

	if p.SizeBytes > 0 {
		fmt.Fprintf(&b, "File Size: %.2f MB\n", float64(p.SizeBytes)/(1024*1024))
	}
	return b.String()
}

// formatSources assembles the combined input block appended to the
// instruction. Empty when the task has no sources.
func formatSources(batch *preprocess.Batch) string {
	if batch == nil || len(batch.Sources) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(batch.Sources))
	for i, p := range batch.Sources {
		blocks = append(blocks, sourceBlock(i+1, p))
	}
	return strings.Join(blocks, sourceSeparator+"\n")
}

// enhanceInstruction appends the sources block under the standard header.
func enhanceInstruction(instruction, sources string) string {
	if sources == "" {
		return instruction
	}
	return instruction + "\n\n" + sourcesHeader + "\n\n" + sources
}

func sourceType(src store.InputSource) string {
	if src.SourceType != "" {
		return src.SourceType
	}
	return "url"
}

func fileType(p *preprocess.Processed) string {
	switch p.Strategy {
	case preprocess.StrategyStructuredData:
		return "data"
	case preprocess.StrategyBinaryCapable:
		return "binary"
	case preprocess.StrategyDocumentProcessing:
		return "document"
	case preprocess.StrategyAlwaysText:
		return "text"
	default:
		return "unknown"
	}
}

// sanitizedSources renders the batch for input_data persistence. Binary
// payloads are never stored; previews stand in for full content.
func sanitizedSources(batch *preprocess.Batch) []map[string]any {
	if batch == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(batch.Sources))
	for _, p := range batch.Sources {
		entry := map[string]any{
			"url":             p.Source.URL,
			"source_type":     sourceType(p.Source),
			"filename":        p.Filename,
			"content_type":    p.ContentType,
			"strategy":        string(p.Strategy),
			"size_bytes":      p.SizeBytes,
			"content_preview": p.ContentPreview,
		}
		if p.Err != "" {
			entry["error"] = p.Err
		}
		out = append(out, entry)
	}
	return out
}
