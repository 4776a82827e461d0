package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/template"
)

const (
	maxImportSize = 1 << 20
	xlsxType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// TemplateService manages a user's templates.
type TemplateService interface {
	List(ctx context.Context, owner uuid.UUID, all bool) ([]*template.Template, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*template.Template, error)
	Create(ctx context.Context, owner uuid.UUID, in template.Input) (*template.Template, error)
	Update(ctx context.Context, owner, id uuid.UUID, p template.Patch) (*template.Template, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	Search(ctx context.Context, owner uuid.UUID, query string) ([]*template.Template, error)
	Stats(ctx context.Context, owner uuid.UUID) (template.Stats, error)
	Duplicate(ctx context.Context, owner, id uuid.UUID, name string) (*template.Template, error)
	Import(ctx context.Context, owner uuid.UUID, doc []byte) (*template.Template, error)
	RecipientSheet(ctx context.Context, owner, id uuid.UUID) ([]byte, string, error)
}

// TemplateHandler serves /api/templates.
type TemplateHandler struct {
	svc   TemplateService
	guard Guard
}

func NewTemplateHandler(svc TemplateService, guard Guard) *TemplateHandler {
	return &TemplateHandler{svc: svc, guard: guard}
}

func (h *TemplateHandler) Routes(r httpapi.Router) {
	r.Route("/api/templates", func(r httpapi.Router) {
		r.Use(h.guard.all()...)
		r.GET("/", h.list)
		r.POST("/", h.create)
		r.GET("/search", h.search)
		r.GET("/stats", h.stats)
		r.POST("/import", h.importMarkdown)
		r.GET("/{id}", h.get)
		r.PUT("/{id}", h.update)
		r.DELETE("/{id}", h.delete)
		r.POST("/{id}/duplicate", h.duplicate)
		r.GET("/{id}/recipient-sheet", h.recipientSheet)
	})
}

func (h *TemplateHandler) list(c *httpapi.Context) error {
	list, err := h.svc.List(c.Context(), c.UserID(), httpapi.QueryDefault(c, "all", false))
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Templates retrieved", map[string]any{"templates": list, "count": len(list)})
}

func (h *TemplateHandler) create(c *httpapi.Context) error {
	var in template.Input
	if err := c.Bind(&in); err != nil {
		return err
	}
	t, err := h.svc.Create(c.Context(), c.UserID(), in)
	if err != nil {
		return err
	}
	return c.Success(http.StatusCreated, "Template created", map[string]any{"template": t})
}

func (h *TemplateHandler) search(c *httpapi.Context) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return httpapi.ErrBadRequest("search query is required")
	}
	list, err := h.svc.Search(c.Context(), c.UserID(), q)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Search completed", map[string]any{"templates": list, "count": len(list), "query": q})
}

func (h *TemplateHandler) stats(c *httpapi.Context) error {
	st, err := h.svc.Stats(c.Context(), c.UserID())
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Template statistics retrieved", map[string]any{"stats": st})
}

// importMarkdown accepts a Markdown document with YAML frontmatter, either
// as the raw body or as the "file" part of a multipart form.
func (h *TemplateHandler) importMarkdown(c *httpapi.Context) error {
	var doc []byte
	if strings.HasPrefix(c.Header("Content-Type"), "multipart/") {
		if err := parseMultipart(c, maxImportSize+64<<10); err != nil {
			return err
		}
		defer cleanupMultipart(c)

		f, _, err := c.Request().FormFile("file")
		if err != nil {
			return httpapi.ErrBadRequest("file is required")
		}
		defer f.Close()
		if doc, err = io.ReadAll(f); err != nil {
			return err
		}
	} else {
		var err error
		doc, err = io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxImportSize))
		if err != nil {
			return httpapi.NewHTTPError(http.StatusRequestEntityTooLarge, httpapi.CodeValidation, "document too large", err)
		}
	}
	if len(strings.TrimSpace(string(doc))) == 0 {
		return httpapi.ErrBadRequest("document is empty")
	}

	t, err := h.svc.Import(c.Context(), c.UserID(), doc)
	if err != nil {
		return err
	}
	return c.Success(http.StatusCreated, "Template imported", map[string]any{"template": t})
}

func (h *TemplateHandler) get(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Template retrieved", map[string]any{"template": t})
}

func (h *TemplateHandler) update(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var p template.Patch
	if err := c.Bind(&p); err != nil {
		return err
	}
	t, err := h.svc.Update(c.Context(), c.UserID(), id, p)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Template updated", map[string]any{"template": t})
}

func (h *TemplateHandler) delete(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Context(), c.UserID(), id); err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Template deleted", nil)
}

// duplicate takes an optional {"name": ...} body.
func (h *TemplateHandler) duplicate(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in struct {
		Name string `json:"name"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&in); err != nil {
			return err
		}
	}
	t, err := h.svc.Duplicate(c.Context(), c.UserID(), id, in.Name)
	if err != nil {
		return err
	}
	return c.Success(http.StatusCreated, "Template duplicated", map[string]any{"template": t})
}

func (h *TemplateHandler) recipientSheet(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	data, name, err := h.svc.RecipientSheet(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	download(c, xlsxType, name)
	c.Response().WriteHeader(http.StatusOK)
	_, err = c.Response().Write(data)
	return err
}
