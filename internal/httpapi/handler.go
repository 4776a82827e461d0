// Package httpapi is the JSON API layer: a chi router whose handlers return
// errors, which are rendered centrally as {"error", "code"} bodies.
package httpapi

// Handler declares routes on a router.
//
//	func (h *TemplateHandler) Routes(r httpapi.Router) {
//	    r.GET("/api/templates", h.list)
//	}
type Handler interface {
	Routes(r Router)
}

// HandlerFunc handles a request. A returned error is rendered by the
// server's error handler unless a response was already written.
type HandlerFunc func(c *Context) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc
