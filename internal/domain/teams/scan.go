package teams

import "strings"

// SplitIntoRows splits CSV text into raw rows. A newline ends a row only
// outside double quotes, so cells holding line breaks stay intact. Rows that
// are only whitespace are dropped. Quotes are left in place for
// SplitRowIntoFields.
func SplitIntoRows(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var rows []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		row := cur.String()
		cur.Reset()
		if strings.TrimSpace(row) != "" {
			rows = append(rows, row)
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			// "" toggles twice, which leaves the state unchanged.
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == '\n' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return rows
}

// SplitRowIntoFields splits one raw row on commas outside quotes. Inside a
// quoted field "" becomes a literal quote. Each field is trimmed.
func SplitRowIntoFields(row string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	runes := []rune(row)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields
}
