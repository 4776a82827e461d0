package sanitizer

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// LinkStyle is the inline style applied to every link in an email body.
const LinkStyle = "color: #1155cc; text-decoration: none;"

var (
	styleWithVarsRe  = regexp.MustCompile(`(?i)style\s*=\s*(?:"[^"]*(?:--|var\(|expression\(|url\(|javascript:)[^"]*"|'[^']*(?:--|var\(|expression\(|url\(|javascript:)[^']*')`)
	cssVarDeclRe     = regexp.MustCompile(`--[\w-]+:\s*[^;]+;`)
	cssVarRefRe      = regexp.MustCompile(`var\([^)]+\)`)
	mediaBlockRe     = regexp.MustCompile(`(?i)@media[^{]+\{[^}]*\}`)
	safeRedirectRe   = regexp.MustCompile(`(?i)\s*data-saferedirecturl\s*=\s*"[^"]*"`)
	wbrRe            = regexp.MustCompile(`(?i)<wbr[^>]*>`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
	anchorRe         = regexp.MustCompile(`(?is)<a\b([^>]*)>(.*?)</a\s*>`)
	hrefAttrRe       = regexp.MustCompile(`(?is)\bhref\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	schemeRe         = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	tagOrAnchorRe    = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a\s*>|<[^>]+>`)
	bareURLRe        = regexp.MustCompile(`(?i)https?://[^\s<>"]+`)
	entityRe         = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	placeholderRe    = regexp.MustCompile(`\{\{[\w .-]+\}\}`)
	innermostSpanRe  = regexp.MustCompile(`(?is)<span\b([^>]*)>((?:[^<]|<[^s/]|</[^s]|<s[^p]|</s[^p])*?)</span\s*>`)
	heldSpanRe       = regexp.MustCompile(`(?is)<(/?)qm-held-span\b`)
	boldStyleRe      = regexp.MustCompile(`(?i)font-weight\s*:\s*(?:bold|700)`)
	italicStyleRe    = regexp.MustCompile(`(?i)font-style\s*:\s*italic`)
	underlineStyleRe = regexp.MustCompile(`(?i)text-decoration(?:-line)?\s*:\s*[^;"]*underline`)
)

// Clean normalizes rich-text HTML into a subset that renders consistently in
// webmail clients. It strips CSS variables, media queries and client-specific
// attributes, turns styled spans into semantic tags, canonicalizes links and
// autolinks bare URLs. The result is passed through the email policy.
//
// Clean is deterministic and idempotent. It never panics; if cleanup fails
// the input is returned unchanged.
func Clean(html string) (out string) {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			out = html
		}
	}()

	s, restore := holdPlaceholders(html)
	s = stripUnsupportedCSS(s)
	s = collapseWhitespace(s)
	s = rewriteStyledSpans(s)
	s = normalizeLinks(s)
	s = autolink(s)
	s = sanitizeEmail(s)
	return restore(collapseWhitespace(s))
}

// holdPlaceholders swaps {{tokens}} for alphanumeric markers so URL
// canonicalization cannot escape tokens used inside links. Only tokens made
// of word characters, spaces, dots and dashes are held; they need no HTML
// escaping when put back.
func holdPlaceholders(s string) (string, func(string) string) {
	tokens := placeholderRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s, func(out string) string { return out }
	}
	prefix := "qmph"
	for strings.Contains(s, prefix) {
		prefix += "x"
	}
	marker := func(i int) string { return prefix + strconv.Itoa(i) + "z" }

	i := 0
	held := placeholderRe.ReplaceAllStringFunc(s, func(string) string {
		m := marker(i)
		i++
		return m
	})
	return held, func(out string) string {
		pairs := make([]string, 0, 2*len(tokens))
		for j, tok := range tokens {
			pairs = append(pairs, marker(j), tok)
		}
		return strings.NewReplacer(pairs...).Replace(out)
	}
}

func stripUnsupportedCSS(s string) string {
	s = styleWithVarsRe.ReplaceAllString(s, "")
	s = cssVarDeclRe.ReplaceAllString(s, "")
	s = cssVarRefRe.ReplaceAllString(s, "")
	s = mediaBlockRe.ReplaceAllString(s, "")
	s = safeRedirectRe.ReplaceAllString(s, "")
	return wbrRe.ReplaceAllString(s, "")
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// rewriteStyledSpans works from the innermost span outwards so nested spans
// are rewritten without breaking tag balance. Spans that carry no emphasis
// are parked under a temporary name until the pass completes.
func rewriteStyledSpans(s string) string {
	if !strings.Contains(strings.ToLower(s), "<span") {
		return s
	}
	for range 1000 {
		next := innermostSpanRe.ReplaceAllStringFunc(s, func(m string) string {
			parts := innermostSpanRe.FindStringSubmatch(m)
			attrs, inner := parts[1], parts[2]

			var open, closing string
			if boldStyleRe.MatchString(attrs) {
				open, closing = open+"<strong>", "</strong>"+closing
			}
			if italicStyleRe.MatchString(attrs) {
				open, closing = open+"<em>", "</em>"+closing
			}
			if underlineStyleRe.MatchString(attrs) {
				open, closing = open+"<u>", "</u>"+closing
			}
			if open == "" {
				return "<qm-held-span" + attrs + ">" + inner + "</qm-held-span>"
			}
			return open + inner + closing
		})
		if next == s {
			break
		}
		s = next
	}
	return heldSpanRe.ReplaceAllString(s, "<${1}span")
}

func normalizeLinks(s string) string {
	return anchorRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := anchorRe.FindStringSubmatch(m)
		text := strings.TrimSpace(parts[2])

		href := ""
		if h := hrefAttrRe.FindStringSubmatch(parts[1]); h != nil {
			href = strings.TrimSpace(h[1] + h[2] + h[3])
		}
		if href == "" || text == "" {
			return text
		}
		if !schemeRe.MatchString(href) {
			href = "https://" + strings.TrimLeft(href, "/")
		}
		if !linkable(href) {
			return text
		}
		return linkTag(href, text)
	})
}

// linkable reports whether href survives the email policy, so a cleaned
// anchor is never rewritten again on a second pass.
func linkable(href string) bool {
	if strings.ContainsAny(href, " \t\n") {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "mailto":
		return true
	}
	return false
}

// autolink wraps bare URLs that appear in text, skipping tag markup and the
// contents of existing anchors.
func autolink(s string) string {
	if !bareURLRe.MatchString(s) {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range tagOrAnchorRe.FindAllStringIndex(s, -1) {
		b.WriteString(linkifyText(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(linkifyText(s[last:]))
	return b.String()
}

func linkifyText(text string) string {
	return bareURLRe.ReplaceAllStringFunc(text, func(match string) string {
		href, tail := splitAtEntity(match)
		if u, err := url.Parse(href); err != nil || u.Host == "" {
			return match
		}
		return linkTag(href, href) + linkifyText(tail)
	})
}

// splitAtEntity cuts a URL match at the first escaped character other
// than &amp;, which is how text like &quot;https://x.com&quot; reaches here.
func splitAtEntity(match string) (string, string) {
	for _, loc := range entityRe.FindAllStringIndex(match, -1) {
		if !strings.EqualFold(match[loc[0]:loc[1]], "&amp;") {
			return match[:loc[0]], match[loc[0]:]
		}
	}
	return match, ""
}

func linkTag(href, text string) string {
	return `<a href="` + strings.ReplaceAll(href, `"`, "%22") + `" style="` + LinkStyle + `">` + text + `</a>`
}
