package preprocess

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const jsonSummaryLimit = 10000

// SummarizeCSV parses tabular data and renders a compact human-readable
// summary: dimensions, inferred column types, the first rows and basic
// statistics for numeric columns.
func SummarizeCSV(content string, delimiter rune) string {
	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return fmt.Sprintf("CSV data (unparseable: %v)\n\n%s", err, truncate(content, 2000))
	}

	header := records[0]
	rows := records[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "CSV data: %d rows x %d columns\n\n", len(rows), len(header))

	b.WriteString("Columns:\n")
	for i, name := range header {
		kind, stats := columnProfile(rows, i)
		if stats != "" {
			fmt.Fprintf(&b, "  %s (%s, %s)\n", name, kind, stats)
		} else {
			fmt.Fprintf(&b, "  %s (%s)\n", name, kind)
		}
	}

	b.WriteString("\nFirst rows:\n")
	b.WriteString(strings.Join(header, " | "))
	b.WriteString("\n")
	for i, row := range rows {
		if i >= 5 {
			fmt.Fprintf(&b, "... (%d more rows)\n", len(rows)-5)
			break
		}
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}

	return b.String()
}

// columnProfile infers a column's type and, for numeric columns, min/max/mean.
func columnProfile(rows [][]string, col int) (string, string) {
	var values []float64
	nonEmpty := 0
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		nonEmpty++
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			values = append(values, f)
		}
	}

	if nonEmpty == 0 {
		return "empty", ""
	}
	if len(values) != nonEmpty {
		return "text", ""
	}

	min, max, sum := values[0], values[0], 0.0
	for _, f := range values {
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
		sum += f
	}
	return "numeric", fmt.Sprintf("min=%g max=%g mean=%.4g", min, max, sum/float64(len(values)))
}

// SummarizeJSON parses a JSON document and renders its shape plus a
// pretty-printed body capped at 10k characters.
func SummarizeJSON(content string) string {
	var value any
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return fmt.Sprintf("JSON data (unparseable: %v)\n\n%s", err, truncate(content, 2000))
	}

	var b strings.Builder
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "JSON object with %d keys: %s\n\n", len(v), strings.Join(keys, ", "))
	case []any:
		fmt.Fprintf(&b, "JSON array with %d items\n\n", len(v))
	default:
		b.WriteString("JSON scalar value\n\n")
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return b.String() + content
	}

	body := string(pretty)
	if len(body) > jsonSummaryLimit {
		body = body[:jsonSummaryLimit] + "\n... [truncated]"
	}
	b.WriteString(body)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... [truncated]"
}
