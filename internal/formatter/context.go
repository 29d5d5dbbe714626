package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultContextLimit bounds the data handed to the generation model.
const DefaultContextLimit = 4000

// DataContext renders data as indented JSON truncated to limit characters.
// A non-positive limit uses DefaultContextLimit.
func DataContext(data map[string]any, limit int) string {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if data == nil {
		data = map[string]any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	var text string
	if err := enc.Encode(data); err != nil {
		text = fmt.Sprintf("%v", data)
	} else {
		text = strings.TrimRight(buf.String(), "\n")
	}
	return truncate(text, limit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
