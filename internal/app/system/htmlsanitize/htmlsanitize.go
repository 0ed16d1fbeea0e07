// Package htmlsanitize cleans user- and operator-supplied text before it is
// stored or rendered.
package htmlsanitize

import (
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()

	// message allows the light inline markup an operator may put in a
	// failure message.
	message = func() *bluemonday.Policy {
		p := bluemonday.NewPolicy()
		p.AllowElements("strong", "em", "b", "i", "br")
		p.AllowStandardURLs()
		p.AllowAttrs("href").OnElements("a")
		p.RequireNoFollowOnLinks(true)
		return p
	}()
)

// StripTags removes all markup, leaving text. Entities stay escaped.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strict.Sanitize(s))
}

// Message sanitizes an operator-configured message for display.
func Message(s string) string {
	if s == "" {
		return ""
	}
	return message.Sanitize(s)
}

// MessageHTML is Message typed for html/template.
func MessageHTML(s string) template.HTML {
	return template.HTML(Message(s))
}

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	return !strings.ContainsAny(s, "<>")
}
