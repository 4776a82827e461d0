package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sync"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/priyanshudevsingh/quickmailer/pkg/placeholder"
)

const defaultLayoutDir = "layouts"

// Renderer turns markdown notification templates into HTML wrapped in a
// layout. Parsed templates and layouts are kept for the Renderer's
// lifetime; only execution happens per call.
type Renderer struct {
	fs        fs.FS
	layoutDir string
	md        goldmark.Markdown

	mu      sync.Mutex
	bodies  map[string]*parsedBody
	layouts map[string]*template.Template
}

type parsedBody struct {
	meta map[string]any
	tmpl *texttemplate.Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLayoutDir sets the directory layouts are read from. Defaults to
// "layouts".
func WithLayoutDir(dir string) RendererOption {
	return func(r *Renderer) {
		if dir != "" {
			r.layoutDir = dir
		}
	}
}

// NewRenderer reads templates from the root of filesystem.
func NewRenderer(filesystem fs.FS, opts ...RendererOption) *Renderer {
	r := &Renderer{
		fs:        filesystem,
		layoutDir: defaultLayoutDir,
		md:        newMarkdown(),
		bodies:    make(map[string]*parsedBody),
		layouts:   make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
}

// MarkdownToHTML converts markdown to an HTML fragment without template
// processing, so {{name}} placeholders pass through untouched.
func MarkdownToHTML(src []byte) (string, error) {
	var out bytes.Buffer
	if err := newMarkdown().Convert(src, &out); err != nil {
		return "", fmt.Errorf("%w: convert markdown: %v", ErrRenderFailed, err)
	}
	return placeholder.Unescape(out.String()), nil
}

// RenderResult is a rendered notification. Text is the executed markdown
// before HTML conversion.
type RenderResult struct {
	Metadata map[string]any
	HTML     string
	Text     string
}

// Render executes the named template with data, converts it to HTML and
// places it in layout as {{.Content}}.
func (r *Renderer) Render(layout, name string, data any) (*RenderResult, error) {
	body, err := r.body(name)
	if err != nil {
		return nil, err
	}
	frame, err := r.layout(layout)
	if err != nil {
		return nil, err
	}

	var text bytes.Buffer
	if err := body.tmpl.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("%w: execute %s: %v", ErrRenderFailed, name, err)
	}
	var content bytes.Buffer
	if err := r.md.Convert(text.Bytes(), &content); err != nil {
		return nil, fmt.Errorf("%w: convert %s: %v", ErrRenderFailed, name, err)
	}

	var out bytes.Buffer
	err = frame.Execute(&out, map[string]any{
		"Content":  template.HTML(content.String()), //nolint:gosec // produced by goldmark from our own templates
		"Metadata": body.meta,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: execute layout %s: %v", ErrRenderFailed, layout, err)
	}

	return &RenderResult{Metadata: body.meta, HTML: out.String(), Text: text.String()}, nil
}

func (r *Renderer) body(name string) (*parsedBody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bodies[name]; ok {
		return b, nil
	}

	raw, err := fs.ReadFile(r.fs, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
	}
	doc, err := ParseTemplate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}
	tmpl, err := texttemplate.New(name).Parse(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrRenderFailed, name, err)
	}

	b := &parsedBody{meta: doc.Metadata, tmpl: tmpl}
	r.bodies[name] = b
	return b, nil
}

func (r *Renderer) layout(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.layouts[name]; ok {
		return l, nil
	}

	raw, err := fs.ReadFile(r.fs, path.Join(r.layoutDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, name, err)
	}
	l, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse layout %s: %v", ErrRenderFailed, name, err)
	}
	r.layouts[name] = l
	return l, nil
}
