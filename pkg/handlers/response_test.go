package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "bad_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "resource not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message)
			if err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			ct := resp.Header.Get("Content-Type")
			if ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}

			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON_Status200(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"key": "value"}

	err := WriteJSON(w, http.StatusOK, data)
	if err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	resp := w.Result()
	defer resp.Body.Close()

	// Status 200 is the default for ResponseRecorder, WriteJSON should not call WriteHeader
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["key"] != "value" {
		t.Errorf("body[key] = %q, want %q", body["key"], "value")
	}
}

func TestWriteJSON_NonOKStatus(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]int{"count": 5}

	err := WriteJSON(w, http.StatusCreated, data)
	if err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	data := make(chan int) // channels cannot be JSON-encoded

	err := WriteJSON(w, http.StatusOK, data)
	if err == nil {
		t.Error("expected error for unencodable data, got nil")
	}
}

func TestMapIngestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid kind", fmt.Errorf("%w: %q", apperrors.ErrInvalidDatasetKind, "x"), http.StatusBadRequest, "invalid_dataset_type"},
		{"too large", apperrors.FileTooLarge(10, 5), http.StatusRequestEntityTooLarge, "file_too_large"},
		{"unreadable", apperrors.UnreadableFile("bad", nil), http.StatusBadRequest, "unreadable_file"},
		{"no mapping", apperrors.NoUsableMapping("none"), http.StatusBadRequest, "no_usable_mapping"},
		{"stale", apperrors.StaleStaging("gone"), http.StatusBadRequest, "stale_upload"},
		{"validation", apperrors.Validation(0, "ENTITY_ID", "is required"), http.StatusBadRequest, "validation_failed"},
		{"sink", apperrors.SinkWrite("write failed", errors.New("boom")), http.StatusInternalServerError, "sink_write_failed"},
		{"wrapped sink", fmt.Errorf("commit: %w", apperrors.SinkWrite("write failed", nil)), http.StatusInternalServerError, "sink_write_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mapIngestError(tt.err)
			if m.status != tt.wantStatus || m.code != tt.wantCode {
				t.Errorf("mapIngestError() = (%d, %q), want (%d, %q)", m.status, m.code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestWriteIngestError_ValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()

	writeIngestError(w, apperrors.Validation(0, "ENTITY_NAME", "is required"), zap.NewNop())

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Details["field"] != "ENTITY_NAME" {
		t.Errorf("details[field] = %v, want ENTITY_NAME", body.Details["field"])
	}
	if body.Details["spreadsheet_row"] != float64(2) {
		t.Errorf("details[spreadsheet_row] = %v, want 2", body.Details["spreadsheet_row"])
	}
}

func TestWriteIngestError_HidesUnexpectedMessage(t *testing.T) {
	w := httptest.NewRecorder()

	writeIngestError(w, errors.New("pq: password authentication failed"), zap.NewNop())

	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Message != "An unexpected error occurred" {
		t.Errorf("message = %q, want generic message", body.Message)
	}
	if body.Details != nil {
		t.Errorf("details = %v, want nil", body.Details)
	}
}
