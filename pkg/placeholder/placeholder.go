// Package placeholder extracts, renders, and validates {{name}} tokens in
// template subjects and bodies.
package placeholder

import (
	"regexp"
	"strings"
)

var (
	tokenPattern   = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	escapedPattern = regexp.MustCompile(`(?i)%7B%7B([\w.-]+)%7D%7D`)
)

// Extract returns the unique trimmed placeholder names found in text,
// in order of first appearance.
//
// Example:
//
//	Extract("Hi {{name}}, {{ name }} from {{company}}")
//	returns: []string{"name", "company"}
func Extract(text string) []string {
	return ExtractAll(text)
}

// ExtractAll returns the ordered union of placeholder names across texts.
// Used to derive a template's placeholder list from its subject and body.
func ExtractAll(texts ...string) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, text := range texts {
		for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// Render replaces every {{name}} whose trimmed name is a key of values.
// An empty value still counts as present. Unknown tokens stay unchanged.
func Render(text string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := strings.TrimSpace(token[2 : len(token)-2])
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}

// Unescape restores tokens a URL encoder percent-escaped, such as
// %7B%7Bid%7D%7D in a link rendered from Markdown.
func Unescape(text string) string {
	if !strings.Contains(text, "%") {
		return text
	}
	return escapedPattern.ReplaceAllString(text, "{{$1}}")
}

// Result reports whether all required placeholders were provided.
type Result struct {
	Missing []string
	OK      bool
}

// Validate checks that every required name is a key of provided.
// Missing keeps the order of required.
func Validate(required []string, provided map[string]string) Result {
	missing := make([]string, 0)
	for _, name := range required {
		if _, ok := provided[name]; !ok {
			missing = append(missing, name)
		}
	}
	return Result{OK: len(missing) == 0, Missing: missing}
}
