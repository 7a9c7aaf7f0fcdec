package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/assistant"
	"github.com/ekaya-inc/datachat-engine/pkg/cache"
	"github.com/ekaya-inc/datachat-engine/pkg/repositories"
)

// ProjectHandler handles project configuration and datasource lifecycle
// endpoints.
type ProjectHandler struct {
	projects repositories.ProjectRepository
	registry *assistant.Registry
	cache    cache.Cache
	logger   *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(
	projects repositories.ProjectRepository,
	registry *assistant.Registry,
	c cache.Cache,
	logger *zap.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		registry: registry,
		cache:    c,
		logger:   logger,
	}
}

// RegisterRoutes registers the project handler's routes on the given mux.
func (h *ProjectHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}", h.Get)
	mux.HandleFunc("GET /api/projects/{pid}/tables", h.ListTables)
	mux.HandleFunc("PUT /api/projects/{pid}/tables", h.UpdateTables)
	mux.HandleFunc("PUT /api/projects/{pid}/business-rule", h.UpdateBusinessRule)
	mux.HandleFunc("POST /api/projects/{pid}/disconnect", h.Disconnect)
}

// Get handles GET /api/projects/{pid}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	// The connection password never leaves the engine.
	project.DBConfig.Password = ""

	if err := WriteJSON(w, http.StatusOK, project); err != nil {
		h.logger.Error("Failed to encode project response", zap.Error(err))
	}
}

// ListTables handles GET /api/projects/{pid}/tables. Returns the live table
// list of the project datasource, cached under its own TTL.
func (h *ProjectHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}

	instance, err := h.registry.Acquire(r.Context(), project)
	if err != nil {
		h.logger.Error("Failed to acquire assistant",
			zap.String("project_id", projectID.String()), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "datasource_unavailable", "Could not reach the project datasource")
		return
	}
	defer h.registry.Release(projectID)

	tables, err := instance.AvailableTables(r.Context())
	if err != nil {
		h.logger.Error("Failed to list tables",
			zap.String("project_id", projectID.String()), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "schema_failed", "Failed to list datasource tables")
		return
	}
	if tables == nil {
		tables = []string{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string][]string{"tables": tables}); err != nil {
		h.logger.Error("Failed to encode tables response", zap.Error(err))
	}
}

// UpdateTablesRequest is the body for replacing the configured table list.
type UpdateTablesRequest struct {
	Tables []string `json:"tables"`
}

// UpdateTables handles PUT /api/projects/{pid}/tables. Cached schema
// snapshots are invalidated so the next question sees the new selection.
func (h *ProjectHandler) UpdateTables(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateTablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.projects.UpdateTables(r.Context(), projectID, req.Tables); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.invalidateSchemaCache(r, projectID)
	h.registry.Evict(projectID)

	w.WriteHeader(http.StatusNoContent)
}

// UpdateBusinessRuleRequest is the body for replacing the business rule.
// A null rule clears it.
type UpdateBusinessRuleRequest struct {
	Rule *string `json:"rule"`
}

// UpdateBusinessRule handles PUT /api/projects/{pid}/business-rule.
func (h *ProjectHandler) UpdateBusinessRule(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateBusinessRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.projects.UpdateBusinessRule(r.Context(), projectID, req.Rule); err != nil {
		h.writeRepoError(w, err)
		return
	}

	if err := h.cache.Delete(r.Context(), cache.BusinessRuleKey(projectID)); err != nil {
		h.logger.Warn("Failed to invalidate business rule cache", zap.Error(err))
	}
	h.registry.Evict(projectID)

	w.WriteHeader(http.StatusNoContent)
}

// Disconnect handles POST /api/projects/{pid}/disconnect. Drops the
// project's datasource connection, its assistant instance and all cached
// schema state.
func (h *ProjectHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		h.writeRepoError(w, err)
		return
	}

	h.registry.Evict(projectID)
	h.invalidateSchemaCache(r, projectID)

	h.logger.Info("project datasource disconnected",
		zap.String("project_id", projectID.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) invalidateSchemaCache(r *http.Request, projectID uuid.UUID) {
	if err := h.cache.DeletePattern(r.Context(), cache.SchemaKeyPattern(projectID)); err != nil {
		h.logger.Warn("Failed to invalidate schema cache", zap.Error(err))
	}
	if err := h.cache.Delete(r.Context(), cache.TablesKey(projectID)); err != nil {
		h.logger.Warn("Failed to invalidate tables cache", zap.Error(err))
	}
}

func (h *ProjectHandler) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "project_not_found", "Project not found")
		return
	}
	h.logger.Error("Repository error", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
}

func (h *ProjectHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
