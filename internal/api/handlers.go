// Package api provides HTTP handlers and routing for the grader service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/unicon/grader-go/internal/config"
	"github.com/unicon/grader-go/internal/engine"
	"github.com/unicon/grader-go/internal/execstore"
	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/metrics"
	"github.com/unicon/grader-go/internal/resultsink"
	"github.com/unicon/grader-go/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store  execstore.Store
	engine *engine.Engine
	schema *graph.SchemaValidator
	sink   resultsink.Sink
	config *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store execstore.Store, eng *engine.Engine, schema *graph.SchemaValidator, sink resultsink.Sink, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:  store,
		engine: eng,
		schema: schema,
		sink:   sink,
		config: cfg,
		logger: logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.List(r.Context()); err != nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail,
			"execution store unhealthy", map[string]interface{}{"cause": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ready",
		"store":  h.config.StoreType,
	})
}

// --- Task Validation ---

// ValidateResponse reports whether a task definition is well-formed.
type ValidateResponse struct {
	Valid     bool                `json:"valid"`
	Errors    []graph.SchemaError `json:"errors,omitempty"`
	Testcases int                 `json:"testcases,omitempty"`
}

// ValidateTask handles POST /api/v1/definitions/validate. It checks the
// JSON shape against the task schema, then compiles every testcase graph
// so structural invariants are enforced before anything is stored.
func (h *Handlers) ValidateTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "read request body", nil)
		return
	}

	if result := h.schema.ValidateTaskJSON(body); !result.Valid {
		h.respondJSON(w, http.StatusOK, ValidateResponse{Valid: false, Errors: result.Errors})
		return
	}

	var task types.TaskDefinition
	if err := json.Unmarshal(body, &task); err != nil {
		h.respondJSON(w, http.StatusOK, ValidateResponse{
			Valid:  false,
			Errors: []graph.SchemaError{{Path: "$", Message: err.Error()}},
		})
		return
	}

	if _, err := engine.CompileTask(&task); err != nil {
		h.respondJSON(w, http.StatusOK, ValidateResponse{
			Valid:  false,
			Errors: []graph.SchemaError{{Path: "$", Message: err.Error()}},
		})
		return
	}

	h.respondJSON(w, http.StatusOK, ValidateResponse{Valid: true, Testcases: len(task.Testcases)})
}

// --- Execution Management ---

// CreateExecutionRequest is the request body for submitting an execution.
type CreateExecutionRequest struct {
	Task   types.TaskDefinition   `json:"task"`
	Inputs map[string]interface{} `json:"inputs,omitempty"`
}

// CreateExecutionResponse is the response body after accepting an execution.
type CreateExecutionResponse struct {
	ExecutionID string                `json:"execution_id"`
	Status      types.ExecutionStatus `json:"status"`
}

// CreateExecution handles POST /api/v1/executions. The task is validated
// synchronously; grading runs in the background and the caller polls
// GET /api/v1/executions/{id}.
func (h *Handlers) CreateExecution(w http.ResponseWriter, r *http.Request) {
	var req CreateExecutionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20)).Decode(&req); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.Task.Testcases) == 0 {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeInvalidTask, "task has no testcases", nil)
		return
	}

	// Reject invalid definitions before accepting the job.
	if _, err := engine.CompileTask(&req.Task); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeInvalidTask, err.Error(), nil)
		return
	}

	executionID := uuid.New().String()
	rec := &types.ExecutionRecord{
		ID:        executionID,
		TaskID:    req.Task.ID,
		Status:    types.ExecutionStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), rec); err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to create execution", nil)
		return
	}

	go h.runExecution(executionID, &req.Task, req.Inputs, rec.CreatedAt)

	h.respondJSON(w, http.StatusAccepted, CreateExecutionResponse{
		ExecutionID: executionID,
		Status:      types.ExecutionStatusQueued,
	})
}

// runExecution grades one submission in the background and persists the
// outcome. It owns its own context; the HTTP request is long gone.
func (h *Handlers) runExecution(executionID string, task *types.TaskDefinition, inputs map[string]interface{}, createdAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.ExecutionTimeout)
	defer cancel()

	started := time.Now().UTC()
	rec := &types.ExecutionRecord{
		ID:        executionID,
		TaskID:    task.ID,
		Status:    types.ExecutionStatusRunning,
		CreatedAt: createdAt,
		StartedAt: &started,
	}
	if err := h.store.Update(ctx, rec); err != nil {
		h.logger.Error("failed to mark execution running",
			"error", err, "execution_id", executionID)
	}

	verdict, err := h.engine.ExecuteTask(ctx, executionID, task, inputs)

	finished := time.Now().UTC()
	rec.FinishedAt = &finished
	if err != nil {
		rec.Status = types.ExecutionStatusFailed
		rec.Error = err.Error()
		metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
		h.logger.Error("execution failed",
			"error", err, "execution_id", executionID, "task_id", task.ID)
	} else {
		rec.Status = types.ExecutionStatusCompleted
		rec.Result = verdict
		metrics.ExecutionsTotal.WithLabelValues("completed").Inc()
	}

	if err := h.store.Update(ctx, rec); err != nil {
		h.logger.Error("failed to store execution result",
			"error", err, "execution_id", executionID)
	}

	if verdict != nil && h.sink != nil {
		if err := h.sink.Publish(ctx, verdict); err != nil {
			h.logger.Error("failed to publish verdict",
				"error", err, "execution_id", executionID)
		}
	}
}

// GetExecution handles GET /api/v1/executions/{id}. With ?view=public the
// result is projected to its submitter-visible form.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, execstore.ErrNotFound) {
			writeErrorResponse(w, r, http.StatusNotFound, ErrCodeNotFound, "execution not found", nil)
			return
		}
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to load execution", nil)
		return
	}

	if r.URL.Query().Get("view") == "public" {
		resp := map[string]interface{}{
			"id":     rec.ID,
			"status": rec.Status,
		}
		if rec.Result != nil {
			resp["result"] = rec.Result.Public()
		}
		h.respondJSON(w, http.StatusOK, resp)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// ListExecutions handles GET /api/v1/executions.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError, "failed to list executions", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"executions": ids})
}

// respondJSON writes a JSON response with the given status code.
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
