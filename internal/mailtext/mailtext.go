// Package mailtext turns message bodies into plain terminal text.
package mailtext

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nhle/mailbox/internal/model"
)

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// blockPattern matches style and script elements including their content.
var blockPattern = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)

// StripHTML removes HTML tags from a string and decodes common entities.
// It is meant for display only and does not sanitize.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := blockPattern.ReplaceAllString(html, "")
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}

// Plain returns the body of m as plain text.
func Plain(m model.Message) string {
	if m.BodyType == model.BodyHTML {
		return StripHTML(m.Body)
	}
	return strings.TrimSpace(m.Body)
}

// Snippet collapses whitespace in text and truncates it to at most n runes.
func Snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
