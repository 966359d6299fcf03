package preprocess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/agenthub/launcher/pkg/fetch"
	"github.com/agenthub/launcher/pkg/store"
)

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		path        string
		want        Strategy
	}{
		{"plain text by type", "text/plain", "file.bin", StrategyAlwaysText},
		{"markdown by extension", "", "notes.md", StrategyAlwaysText},
		{"csv by type", "text/csv", "data", StrategyStructuredData},
		{"json by extension", "", "payload.json", StrategyStructuredData},
		{"pdf", "application/pdf", "doc.pdf", StrategyBinaryCapable},
		{"png by type with params", "image/png; charset=binary", "pic", StrategyBinaryCapable},
		{"docx", "", "report.docx", StrategyDocumentProcessing},
		{"content type wins over extension", "text/plain", "data.json", StrategyAlwaysText},
		{"unknown", "application/octet-stream", "blob.xyz", StrategyUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseStrategy(tt.contentType, tt.path); got != tt.want {
				t.Errorf("ChooseStrategy(%q, %q) = %q, want %q", tt.contentType, tt.path, got, tt.want)
			}
		})
	}
}

func TestDecodeTextCascade(t *testing.T) {
	if got := decodeText([]byte("plain utf-8 ✓")); got != "plain utf-8 ✓" {
		t.Errorf("utf-8 roundtrip failed: %q", got)
	}

	// ISO-8859-1 "café"
	latin1 := []byte{'c', 'a', 'f', 0xe9}
	if got := decodeText(latin1); !strings.Contains(got, "caf") || strings.Contains(got, "�") {
		t.Errorf("latin-1 decode = %q, want café without replacement runes", got)
	}
}

func TestSummarizeCSV(t *testing.T) {
	csv := "name,score\nalice,10\nbob,20\ncarol,30\n"
	got := SummarizeCSV(csv, ',')

	for _, want := range []string{"3 rows x 2 columns", "name (text)", "score (numeric", "mean=20", "alice | 10"} {
		if !strings.Contains(got, want) {
			t.Errorf("SummarizeCSV missing %q in:\n%s", want, got)
		}
	}
}

func TestSummarizeCSVManyRowsTruncated(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := 0; i < 20; i++ {
		b.WriteString("1\n")
	}
	got := SummarizeCSV(b.String(), ',')
	if !strings.Contains(got, "15 more rows") {
		t.Errorf("expected truncation note, got:\n%s", got)
	}
}

func TestSummarizeJSON(t *testing.T) {
	got := SummarizeJSON(`{"b":1,"a":[1,2,3]}`)
	if !strings.Contains(got, "JSON object with 2 keys: a, b") {
		t.Errorf("unexpected object summary:\n%s", got)
	}

	got = SummarizeJSON(`[1,2,3,4]`)
	if !strings.Contains(got, "JSON array with 4 items") {
		t.Errorf("unexpected array summary:\n%s", got)
	}

	got = SummarizeJSON(`{invalid`)
	if !strings.Contains(got, "unparseable") {
		t.Errorf("unexpected invalid-JSON summary:\n%s", got)
	}
}

func TestSummarizeJSONTruncates(t *testing.T) {
	big := `{"data":"` + strings.Repeat("x", 20000) + `"}`
	got := SummarizeJSON(big)
	if !strings.Contains(got, "[truncated]") {
		t.Error("expected truncation marker for large JSON")
	}
	if len(got) > jsonSummaryLimit+200 {
		t.Errorf("summary length = %d, want near %d", len(got), jsonSummaryLimit)
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessText(t *testing.T) {
	path := writeTemp(t, "notes.md", "# Heading\nbody text")
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{URL: "https://x/notes.md"}, &fetch.Result{
		FilePath: path, Filename: "notes.md", ContentType: "text/markdown", SizeBytes: 19,
	})

	if out.Strategy != StrategyAlwaysText {
		t.Errorf("Strategy = %q", out.Strategy)
	}
	if out.ProcessedContent != "# Heading\nbody text" {
		t.Errorf("ProcessedContent = %q", out.ProcessedContent)
	}
	if out.ContentPreview != out.ProcessedContent {
		t.Errorf("short content should preview in full")
	}
}

func TestProcessTextPreviewCapped(t *testing.T) {
	long := strings.Repeat("a", 1200)
	path := writeTemp(t, "big.txt", long)
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "big.txt", ContentType: "text/plain", SizeBytes: 1200,
	})
	if !strings.HasSuffix(out.ContentPreview, "...") {
		t.Errorf("capped preview should end with a marker, got %q", out.ContentPreview[len(out.ContentPreview)-10:])
	}
	if got := len([]rune(out.ContentPreview)); got != textPreviewLen+3 {
		t.Errorf("preview length = %d runes, want %d", got, textPreviewLen+3)
	}
}

func TestProcessTextPreviewKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("日", 800)
	path := writeTemp(t, "cjk.txt", long)
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "cjk.txt", ContentType: "text/plain",
	})
	if !utf8.ValidString(out.ContentPreview) {
		t.Error("preview split a multibyte rune")
	}
	if got := len([]rune(out.ContentPreview)); got != textPreviewLen+3 {
		t.Errorf("preview length = %d runes, want %d", got, textPreviewLen+3)
	}
}

func TestProcessStructured(t *testing.T) {
	path := writeTemp(t, "data.csv", "a,b\n1,2\n")
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "data.csv", ContentType: "text/csv",
	})
	if !strings.Contains(out.ProcessedContent, "1 rows x 2 columns") {
		t.Errorf("ProcessedContent = %q", out.ProcessedContent)
	}
}

func TestProcessRawPassthrough(t *testing.T) {
	path := writeTemp(t, "scan.pdf", "%PDF-fake")
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{SkipPreprocessing: true}, &fetch.Result{
		FilePath: path, Filename: "scan.pdf", ContentType: "application/pdf", SizeBytes: 9,
	})
	if !out.Raw {
		t.Fatal("expected raw passthrough")
	}
	if out.MediaType != "application/pdf" {
		t.Errorf("MediaType = %q", out.MediaType)
	}
	if string(out.BinaryData) != "%PDF-fake" {
		t.Errorf("BinaryData = %q", out.BinaryData)
	}
}

func TestProcessCorruptDocumentDegradesToPlaceholder(t *testing.T) {
	path := writeTemp(t, "broken.docx", "not a zip")
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "broken.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	})
	if out.Err == "" {
		t.Error("expected recorded extraction error")
	}
	if !strings.Contains(out.ProcessedContent, "extraction failed") {
		t.Errorf("ProcessedContent = %q, want failure placeholder", out.ProcessedContent)
	}
}

func TestProcessImageWithoutPassthrough(t *testing.T) {
	path := writeTemp(t, "pic.png", "\x89PNG")
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "pic.png", ContentType: "image/png", SizeBytes: 4,
	})
	if out.Raw {
		t.Error("image without skip_preprocessing must not pass through raw")
	}
	if !strings.Contains(out.ProcessedContent, "[image file: pic.png") {
		t.Errorf("ProcessedContent = %q", out.ProcessedContent)
	}
}

func TestProcessUnknownBinary(t *testing.T) {
	path := writeTemp(t, "blob.xyz", string([]byte{0, 1, 2, 3, 250, 251, 252}))
	p := NewProcessor(nil)

	out := p.Process(store.InputSource{}, &fetch.Result{
		FilePath: path, Filename: "blob.xyz", SizeBytes: 7,
	})
	if !strings.Contains(out.ProcessedContent, "[binary file: blob.xyz") {
		t.Errorf("ProcessedContent = %q", out.ProcessedContent)
	}
}
