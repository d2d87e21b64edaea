package feed

import "strings"

const (
	delimiter = ','
	quote     = '"'
	bom       = "\ufeff"
)

// Parse converts the CSV text into records, header row first. Rows are split
// on newlines before tokenizing, so a broken quote can only damage its own
// row. Blank rows are skipped; a feed with no data rows yields an empty slice.
func Parse(text string) []Record {
	lines := make([]string, 0, strings.Count(text, "\n")+1)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return []Record{}
	}

	headers := SplitRow(strings.TrimPrefix(lines[0], bom))

	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := SplitRow(line)
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(values) {
				rec[h] = values[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

// SplitRow tokenizes a single row. A field that opens with a double quote may
// contain delimiters, and a doubled quote inside it stands for one literal
// quote. Text after a closing quote is kept as-is, and an unterminated quote
// swallows the rest of the row instead of failing. Every value is trimmed.
func SplitRow(line string) []string {
	var (
		fields []string
		field  strings.Builder
		quoted bool
	)

	flush := func() {
		fields = append(fields, strings.TrimSpace(field.String()))
		field.Reset()
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		if quoted {
			if c != quote {
				field.WriteByte(c)
				continue
			}
			if i+1 < len(line) && line[i+1] == quote {
				field.WriteByte(quote)
				i++
				continue
			}
			quoted = false
			continue
		}

		switch {
		case c == delimiter:
			flush()
		case c == quote && strings.TrimSpace(field.String()) == "":
			// opening quote; whitespace before it is dropped
			field.Reset()
			quoted = true
		default:
			field.WriteByte(c)
		}
	}
	flush()
	return fields
}
