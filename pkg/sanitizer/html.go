package sanitizer

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	safePolicy   *bluemonday.Policy
	emailPolicy  *bluemonday.Policy
	initOnce     sync.Once
)

func initPolicies() {
	initOnce.Do(func() {
		// StrictPolicy strips ALL HTML, returns plain text
		strictPolicy = bluemonday.StrictPolicy()

		// SafePolicy allows basic formatting for previews and user-facing text
		safePolicy = bluemonday.NewPolicy()
		safePolicy.AllowStandardURLs()
		safePolicy.AllowElements(
			"p", "br",
			"strong", "b", "em", "i",
			"ul", "ol", "li",
			"code", "pre", "blockquote",
		)
		safePolicy.AllowAttrs("href").OnElements("a")
		safePolicy.RequireNoFollowOnLinks(true)

		// EmailPolicy keeps what rich-text editors produce for email bodies,
		// including inline styles, images and layout tables.
		emailPolicy = bluemonday.NewPolicy()
		emailPolicy.AllowStandardURLs()
		emailPolicy.RequireNoFollowOnLinks(false)
		emailPolicy.AllowElements(
			"p", "br", "div", "span", "hr", "center",
			"strong", "b", "em", "i", "u", "s", "strike", "sub", "sup", "small", "big", "font",
			"ul", "ol", "li",
			"h1", "h2", "h3", "h4", "h5", "h6",
			"code", "pre", "blockquote",
			"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption", "colgroup", "col",
		)
		emailPolicy.AllowAttrs("style", "title", "align", "dir").Globally()
		emailPolicy.AllowAttrs("href", "target", "rel").OnElements("a")
		emailPolicy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
		emailPolicy.AllowAttrs("color", "face", "size").OnElements("font")
		emailPolicy.AllowAttrs("width", "height", "colspan", "rowspan", "valign", "bgcolor", "border", "cellpadding", "cellspacing").
			OnElements("table", "tr", "td", "th", "col", "colgroup")
	})
}

// StripHTML removes all markup and returns plain text.
// Use for previews, notification text and search snippets.
func StripHTML(s string) string {
	initPolicies()
	return strictPolicy.Sanitize(s)
}

// SanitizeHTML allows safe formatting tags (p, a, strong, em, lists, code).
// Strips all dangerous elements and attributes including scripts, event handlers,
// and javascript: URLs.
func SanitizeHTML(s string) string {
	initPolicies()
	return safePolicy.Sanitize(s)
}

// SanitizeHTMLCustom applies a custom bluemonday policy.
// Returns input unchanged if policy is nil.
func SanitizeHTMLCustom(s string, policy *bluemonday.Policy) string {
	if policy == nil {
		return s
	}
	return policy.Sanitize(s)
}

func sanitizeEmail(s string) string {
	initPolicies()
	return emailPolicy.Sanitize(s)
}
