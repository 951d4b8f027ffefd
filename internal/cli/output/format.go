package output

import (
	"fmt"
	"strings"
)

// FormatHeader renders a markdown header line.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue renders a bolded "**Key**: value" markdown line.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("**%s**: %s", key, value)
}

// FormatCodeBlock renders a fenced code block.
func FormatCodeBlock(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}
