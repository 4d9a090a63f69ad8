package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/validation"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return ErrorResponseWithDetails(w, statusCode, errorCode, message, nil)
}

// ErrorResponseWithDetails writes a JSON error response carrying structured context.
func ErrorResponseWithDetails(w http.ResponseWriter, statusCode int, errorCode, message string, details map[string]any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(errorBody{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorMapping is the HTTP rendering of an ingestion failure.
type errorMapping struct {
	status int
	code   string
}

// mapIngestError picks status and code for err. Order matters: a too large
// file is also an unreadable file.
func mapIngestError(err error) errorMapping {
	switch {
	case errors.Is(err, apperrors.ErrInvalidDatasetKind):
		return errorMapping{http.StatusBadRequest, "invalid_dataset_type"}
	case errors.Is(err, apperrors.ErrFileTooLarge):
		return errorMapping{http.StatusRequestEntityTooLarge, "file_too_large"}
	case errors.Is(err, apperrors.ErrUnreadableFile):
		return errorMapping{http.StatusBadRequest, "unreadable_file"}
	case errors.Is(err, apperrors.ErrNoUsableMapping):
		return errorMapping{http.StatusBadRequest, "no_usable_mapping"}
	case errors.Is(err, apperrors.ErrStaleStaging):
		return errorMapping{http.StatusBadRequest, "stale_upload"}
	case errors.Is(err, apperrors.ErrValidation):
		return errorMapping{http.StatusBadRequest, "validation_failed"}
	case errors.Is(err, apperrors.ErrSinkWrite):
		return errorMapping{http.StatusInternalServerError, "sink_write_failed"}
	default:
		return errorMapping{http.StatusInternalServerError, "internal_error"}
	}
}

// writeIngestError renders err as a structured error response. Messages of
// unexpected errors are not exposed to the client.
func writeIngestError(w http.ResponseWriter, err error, logger *zap.Logger) {
	m := mapIngestError(err)

	message := "An unexpected error occurred"
	var details map[string]any
	if ie, ok := apperrors.AsIngestError(err); ok {
		message = ie.Message
		details = map[string]any{}
		if ie.HasRow() {
			details["row_index"] = ie.Row
			details["spreadsheet_row"] = validation.SpreadsheetRow(ie.Row)
		}
		if ie.Field != "" {
			details["field"] = ie.Field
		}
		if len(details) == 0 {
			details = nil
		}
	} else if errors.Is(err, apperrors.ErrInvalidDatasetKind) {
		message = "Invalid dataset type"
	}

	if m.status >= http.StatusInternalServerError {
		logger.Error("Ingestion request failed", zap.Error(err))
	}

	if encErr := ErrorResponseWithDetails(w, m.status, m.code, message, details); encErr != nil {
		logger.Error("Failed to write error response", zap.Error(encErr))
	}
}
