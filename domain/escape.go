package domain

import "strings"

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML replaces the five HTML-significant characters.
// Text without them is returned unchanged.
func EscapeHTML(text string) string {
	return htmlReplacer.Replace(text)
}
