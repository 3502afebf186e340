package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// newPostPolicy allows the basic formatting a rendered markdown body uses.
// Everything else, scripts and inline handlers included, is stripped.
func newPostPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoFollowOnLinks(true)
	return p
}

// cleanPost trims and sanitizes user-authored post fields. Titles are plain
// text and get escaped, so their length is checked before cleanPost.
func (s *IntentService) cleanPost(title, content string) (string, string) {
	title = html.EscapeString(strings.TrimSpace(title))
	content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	return title, content
}
