package mailer

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var fence = []byte("---")

// Template is a markdown document split from its YAML frontmatter.
type Template struct {
	Metadata map[string]any
	Body     string
}

// ParseTemplate splits content into frontmatter and body. Content that does
// not open with "---" is all body.
func ParseTemplate(content []byte) (*Template, error) {
	rest, ok := bytes.CutPrefix(content, fence)
	if !ok {
		return &Template{Metadata: map[string]any{}, Body: string(content)}, nil
	}
	rest = bytes.TrimLeft(rest, "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: empty document after opening fence", ErrInvalidFrontmatter)
	}

	front, body, ok := bytes.Cut(rest, fence)
	if !ok {
		return nil, fmt.Errorf("%w: closing fence not found", ErrInvalidFrontmatter)
	}
	body, _ = bytes.CutPrefix(body, []byte("\r"))
	body, _ = bytes.CutPrefix(body, []byte("\n"))

	meta := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return &Template{Metadata: meta, Body: string(body)}, nil
}
