package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/servicekit/internal/api"
	"github.com/phrazzld/servicekit/internal/api/middleware"
	"github.com/phrazzld/servicekit/internal/api/shared"
	"github.com/phrazzld/servicekit/internal/config"
	"github.com/phrazzld/servicekit/internal/platform/logger"
	"github.com/phrazzld/servicekit/service"
)

// newRouter assembles the HTTP surface: trace middleware, JWT
// authentication, and the service invocation endpoints.
func newRouter(cfg *config.Config, log *slog.Logger) (http.Handler, error) {
	registry, err := buildRegistry()
	if err != nil {
		return nil, err
	}

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, log)
	if err != nil {
		return nil, err
	}
	handler := api.NewServiceHandler(registry, log)

	r := chi.NewRouter()
	r.Use(traceMiddleware(log))
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Get("/services", handler.ListServices)
		r.Post("/services/{name}", handler.InvokeService)
	})
	return r, nil
}

// traceMiddleware assigns each request a trace ID and stores a
// trace-scoped logger in the request context.
func traceMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			requestLogger := log.With(slog.String("trace_id", shared.GetTraceID(ctx)))
			ctx = logger.WithContext(ctx, requestLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildRegistry defines and registers the server's services.
func buildRegistry() (*service.Registry, error) {
	registry := service.NewRegistry()

	divide := service.Define("divide").
		Input("numerator", "denominator").
		AllowAll().
		Main(func(ctx context.Context, s *service.Instance) error {
			numerator, ok := toFloat(s.Input("numerator"))
			if !ok {
				return s.Result().Fail("numerator must be a number")
			}
			denominator, ok := toFloat(s.Input("denominator"))
			if !ok {
				return s.Result().Fail("denominator must be a number")
			}
			if denominator == 0 {
				return s.Result().Fail("div by zero")
			}
			return s.Result().Success(numerator / denominator)
		})

	greet := service.Define("greet").
		Input("name").
		InputDefault("greeting", func() any { return "hello" }).
		AllowAll().
		Main(func(ctx context.Context, s *service.Instance) error {
			name, ok := s.Input("name").(string)
			if !ok {
				return s.Result().Fail("name must be a string")
			}
			greeting, _ := s.Input("greeting").(string)
			return s.Result().Success(greeting + ", " + name)
		})

	// Only principals carrying the admin role may read the registry
	// configuration back.
	describeRegistry := service.Define("describe_registry").
		Authorize(func(s *service.Instance) bool {
			principal, ok := s.Principal().(middleware.Principal)
			return ok && principal.HasRole("admin")
		}).
		Main(func(ctx context.Context, s *service.Instance) error {
			return s.Result().Success(registry.Names())
		})

	for _, def := range []*service.Definition{divide, greet, describeRegistry} {
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// toFloat normalizes JSON numeric inputs, which arrive as float64, while
// tolerating ints from in-process callers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
