// Package api provides HTTP handlers for the reference server, exposing
// registered service definitions behind a JSON endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/servicekit/internal/api/shared"
	"github.com/phrazzld/servicekit/internal/platform/logger"
	"github.com/phrazzld/servicekit/service"
)

// InvocationResponse represents the outcome of one service invocation.
type InvocationResponse struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListResponse represents the registered service catalog.
type ListResponse struct {
	Services []string `json:"services"`
}

// ServiceHandler handles service invocation HTTP requests.
type ServiceHandler struct {
	registry *service.Registry
	logger   *slog.Logger
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(registry *service.Registry, log *slog.Logger) *ServiceHandler {
	if registry == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("registry cannot be nil for ServiceHandler")
	}
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ServiceHandler")
	}
	return &ServiceHandler{
		registry: registry,
		logger:   log.With(slog.String("component", "service_handler")),
	}
}

// ListServices handles GET /v1/services requests.
func (h *ServiceHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ListResponse{
		Services: h.registry.Names(),
	})
}

// InvokeService handles POST /v1/services/{name} requests. The body is a
// JSON object of named inputs (or empty); the authenticated principal from
// the request context becomes the invocation's principal.
func (h *ServiceHandler) InvokeService(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	principal, ok := shared.Principal(r.Context())
	if !ok {
		log.Warn("principal not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	name := chi.URLParam(r, "name")
	inputs, err := decodeInputs(r.Body)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	invoker, err := service.NewInvoker(h.registry, principal, log)
	if err != nil {
		log.Error("failed to construct invoker", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	res, err := invoker.Invoke(r.Context(), name, inputs)
	if err != nil {
		status := MapErrorToStatusCode(err)
		if status == http.StatusInternalServerError {
			log.Error("service invocation failed",
				slog.String("service_name", name),
				slog.String("error", err.Error()))
		} else {
			log.Debug("service invocation rejected",
				slog.String("service_name", name),
				slog.String("error", err.Error()))
		}
		shared.RespondWithError(w, r, status, GetSafeErrorMessage(err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, buildInvocationResponse(name, res))
}

// decodeInputs reads the request body as a JSON object of named inputs. An
// empty body means no inputs.
func decodeInputs(body io.Reader) (map[string]any, error) {
	var inputs map[string]any
	err := json.NewDecoder(body).Decode(&inputs)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inputs, nil
}

// buildInvocationResponse renders a Result. Business-level error Results
// are expected outcomes and still travel with HTTP 200; only structural
// call failures become HTTP errors.
func buildInvocationResponse(name string, res *service.Result) InvocationResponse {
	resp := InvocationResponse{
		Service: name,
		Status:  string(res.Status()),
	}
	switch res.Status() {
	case service.StatusSuccess:
		resp.Value = res.Value()
	case service.StatusError:
		resp.Error = fmt.Sprintf("%v", res.Value())
	}
	return resp
}
