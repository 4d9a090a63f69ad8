package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
)

// ParseDatasetKind extracts and validates the dataset kind from the request path.
// Returns the kind and true on success, or false on error (after writing an error response).
// Expects path parameter: kind
func ParseDatasetKind(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.DatasetKind, bool) {
	kind, err := models.ParseDatasetKind(r.PathValue("kind"))
	if err != nil {
		if encErr := ErrorResponse(w, http.StatusBadRequest, "invalid_dataset_type", "Invalid dataset type"); encErr != nil {
			logger.Error("Failed to write error response", zap.Error(encErr))
		}
		return "", false
	}
	return kind, true
}

// RequireSessionID returns the session id set by the session middleware.
// Returns false after writing an error response when it is missing.
func RequireSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	id, ok := sessions.IDFromContext(r.Context())
	if !ok {
		logger.Error("Request reached a session handler without a session id")
		if err := ErrorResponse(w, http.StatusInternalServerError, "no_session", "Session unavailable"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return id, true
}
