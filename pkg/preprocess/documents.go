package preprocess

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

const excelCellLimit = 1000

// ExtractPDFText extracts plain text from a PDF, page by page. Pages that
// fail extraction are noted inline so the rest of the document still flows
// into the prompt.
func ExtractPDFText(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat PDF: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("[page %d: extraction failed: %v]", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("PDF contains no extractable text")
	}
	return strings.Join(parts, "\n\n"), nil
}

// ExtractDocxText extracts the body text of a Word document.
func ExtractDocxText(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open Word document: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("Word document contains no text")
	}
	return content, nil
}

// ExtractXlsxText renders a spreadsheet as delimited rows, sheet by sheet,
// capped to keep spreadsheets from dominating the prompt.
func ExtractXlsxText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var parts []string
	cells := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			parts = append(parts, fmt.Sprintf("## %s\n[sheet unreadable: %v]", sheet, err))
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n", sheet)
		for _, row := range rows {
			if cells >= excelCellLimit {
				b.WriteString("... [truncated]\n")
				break
			}
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
			cells += len(row)
		}
		parts = append(parts, b.String())
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("spreadsheet contains no sheets")
	}
	return strings.Join(parts, "\n"), nil
}
