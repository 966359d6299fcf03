package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenthub/launcher/pkg/preprocess"
	"github.com/agenthub/launcher/pkg/store"
)

func TestFormatSources(t *testing.T) {
	batch := &preprocess.Batch{
		Sources: []*preprocess.Processed{
			{
				Source:           store.InputSource{URL: "https://example.com/report.txt"},
				Filename:         "report.txt",
				ContentType:      "text/plain",
				Strategy:         preprocess.StrategyAlwaysText,
				ProcessedContent: "quarterly numbers",
				SizeBytes:        2 * 1024 * 1024,
			},
			{
				Source: store.InputSource{URL: "https://example.com/missing.pdf", SourceType: "url"},
				Err:    "404 not found",
			},
		},
	}

	block := formatSources(batch)

	assert.Contains(t, block, "Source 1: https://example.com/report.txt")
	assert.Contains(t, block, "Source Type: url")
	assert.Contains(t, block, "File Type: text (text/plain)")
	assert.Contains(t, block, "Filename: report.txt")
	assert.Contains(t, block, "Content: quarterly numbers")
	assert.Contains(t, block, "File Size: 2.00 MB")

	assert.Contains(t, block, "Source 2: https://example.com/missing.pdf")
	assert.Contains(t, block, "[Error processing url URL: https://example.com/missing.pdf]")

	assert.Contains(t, block, strings.Repeat("-", 50))
}

func TestFormatSourcesRawFile(t *testing.T) {
	batch := &preprocess.Batch{
		Sources: []*preprocess.Processed{
			{
				Source:      store.InputSource{URL: "https://example.com/photo.png", SkipPreprocessing: true},
				Filename:    "photo.png",
				ContentType: "image/png",
				Strategy:    preprocess.StrategyBinaryCapable,
				Raw:         true,
				MediaType:   "image/png",
				SizeBytes:   1024,
			},
		},
		HasRawFiles: true,
	}

	block := formatSources(batch)
	assert.Contains(t, block, "Description: [Raw file for multimodal processing: photo.png]")
	assert.NotContains(t, block, "Content:")
}

func TestEnhanceInstruction(t *testing.T) {
	assert.Equal(t, "do the thing", enhanceInstruction("do the thing", ""))

	enhanced := enhanceInstruction("do the thing", "Source 1: x")
	assert.True(t, strings.HasPrefix(enhanced, "do the thing\n\n--- INPUT SOURCES ---\n\n"))
	assert.Contains(t, enhanced, "Source 1: x")
}

func TestSanitizedSourcesStripsBinary(t *testing.T) {
	batch := &preprocess.Batch{
		Sources: []*preprocess.Processed{
			{
				Source:         store.InputSource{URL: "https://example.com/a.png"},
				Filename:       "a.png",
				ContentType:    "image/png",
				Strategy:       preprocess.StrategyBinaryCapable,
				Raw:            true,
				BinaryData:     []byte{0x89, 0x50, 0x4e, 0x47},
				ContentPreview: "[raw image/png file: a.png (4 bytes)]",
			},
		},
	}

	out := sanitizedSources(batch)
	assert.Len(t, out, 1)
	assert.NotContains(t, out[0], "binary_data")
	assert.Equal(t, "a.png", out[0]["filename"])
	assert.Equal(t, "[raw image/png file: a.png (4 bytes)]", out[0]["content_preview"])
}

func TestChainInputSource(t *testing.T) {
	parent := &store.AgentTask{
		Name: "daily-report",
		InputSources: []store.InputSource{
			{URL: "https://example.com/in.pdf", SkipPreprocessing: true, ContainsImages: true},
		},
	}

	entry := chainInputSource(parent, "exec-42", "the parent output")
	assert.Equal(t, "agent-output://exec-42", entry.URL)
	assert.Equal(t, "agent_output", entry.SourceType)
	assert.Equal(t, "daily-report_output.txt", entry.Filename)
	assert.Equal(t, "text/plain", entry.ContentType)
	assert.Equal(t, "exec-42", entry.AgentExecutionID)
	assert.Equal(t, "the parent output", entry.ProcessedContent)
	assert.True(t, entry.SkipPreprocessing)
	assert.True(t, entry.ContainsImages)

	noInputs := chainInputSource(&store.AgentTask{Name: "bare"}, "exec-1", "out")
	assert.False(t, noInputs.SkipPreprocessing)
}
