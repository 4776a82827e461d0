// Package middlewares provides the HTTP middleware of the API server.
//
// Recommended order:
//
//	httpapi.WithMiddleware(
//	    middlewares.CORS(middlewares.WithAllowOrigins(cfg.FrontendURL), middlewares.WithAllowCredentials()),
//	    middlewares.RequestID(),
//	    middlewares.Recover(),
//	)
//
// Auth and Timeout are applied per route group:
//
//	r.Route("/api/templates", func(r httpapi.Router) {
//	    r.Use(middlewares.Auth(authSvc), middlewares.Timeout(30*time.Second))
//	    ...
//	})
package middlewares
