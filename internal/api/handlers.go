// File: internal/api/handlers.go
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/crust/api/schemas"
)

const (
	msgInvalidCommand = "Please enter a valid command"
	msgExecutionError = "Error executing automation"
	msgBusy           = "Too many automations in progress, try again later"
)

// maxBodyBytes caps the request body of /api/interact.
const maxBodyBytes = 1 << 20

// Runner executes one goal to completion. *agent.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, goal string) (*schemas.RunResult, error)
}

// InteractRequest is the body of POST /api/interact.
type InteractRequest struct {
	Command string `json:"command"`
}

// Handlers serves the automation endpoints.
type Handlers struct {
	log    *zap.Logger
	runner Runner
	// slots bounds the number of runs in flight, each of which owns a browser session.
	slots *semaphore.Weighted
}

// NewHandlers creates the handlers. maxConcurrent below one is treated as one.
func NewHandlers(logger *zap.Logger, runner Runner, maxConcurrent int) *Handlers {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Handlers{
		log:    logger.Named("api_handlers"),
		runner: runner,
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// RegisterRoutes mounts the health check and the automation endpoint. auth,
// when non-nil, guards only the API group.
func (h *Handlers) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Post("/interact", h.HandleInteract)
	})
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleInteract runs one automation for the submitted command and returns
// its result log.
func (h *Handlers) HandleInteract(w http.ResponseWriter, r *http.Request) {
	var req InteractRequest
	if err := jsoniter.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.log.Debug("Rejected malformed interact request.", zap.Error(err))
		h.respondWithMessage(w, http.StatusBadRequest, msgInvalidCommand)
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		h.respondWithMessage(w, http.StatusBadRequest, msgInvalidCommand)
		return
	}

	if !h.slots.TryAcquire(1) {
		h.log.Warn("Concurrent run limit reached, rejecting request.")
		h.respondWithMessage(w, http.StatusServiceUnavailable, msgBusy)
		return
	}
	defer h.slots.Release(1)

	reqID := middleware.GetReqID(r.Context())
	h.log.Info("Received automation command.", zap.String("request_id", reqID), zap.String("command", command))

	// A run is not cancelable once started; a client that hangs up only
	// loses the response.
	result, err := h.runner.Run(context.WithoutCancel(r.Context()), command)
	if err != nil {
		h.log.Error("Automation failed.", zap.String("request_id", reqID), zap.Error(err))
		h.respondWithMessage(w, http.StatusInternalServerError, msgExecutionError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, result)
}

func (h *Handlers) respondWithMessage(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]string{"message": message})
}

func (h *Handlers) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := jsoniter.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
