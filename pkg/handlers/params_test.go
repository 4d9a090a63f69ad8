package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
)

func TestParseDatasetKind(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pathValue  string
		wantOK     bool
		wantKind   models.DatasetKind
		wantStatus int
	}{
		{name: "entities", pathValue: "entities", wantOK: true, wantKind: models.DatasetEntities},
		{name: "ownership", pathValue: "ownership", wantOK: true, wantKind: models.DatasetOwnership},
		{name: "persons", pathValue: "persons", wantOK: true, wantKind: models.DatasetPersons},
		{name: "unknown", pathValue: "subsidiaries", wantStatus: http.StatusBadRequest},
		{name: "wrong case", pathValue: "Entities", wantStatus: http.StatusBadRequest},
		{name: "empty", pathValue: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			req.SetPathValue("kind", tt.pathValue)
			rec := httptest.NewRecorder()

			kind, ok := ParseDatasetKind(rec, req, logger)

			if ok != tt.wantOK {
				t.Fatalf("ParseDatasetKind() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				if kind != tt.wantKind {
					t.Errorf("ParseDatasetKind() kind = %q, want %q", kind, tt.wantKind)
				}
				return
			}

			if rec.Code != tt.wantStatus {
				t.Errorf("ParseDatasetKind() status = %v, want %v", rec.Code, tt.wantStatus)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != "invalid_dataset_type" {
				t.Errorf("ParseDatasetKind() error = %v, want invalid_dataset_type", resp["error"])
			}
		})
	}
}

func TestRequireSessionID(t *testing.T) {
	logger := zap.NewNop()

	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req = req.WithContext(sessions.WithSessionID(req.Context(), "abc"))
		rec := httptest.NewRecorder()

		id, ok := RequireSessionID(rec, req, logger)
		if !ok || id != "abc" {
			t.Errorf("RequireSessionID() = %q, %v; want abc, true", id, ok)
		}
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		_, ok := RequireSessionID(rec, req, logger)
		if ok {
			t.Fatal("RequireSessionID() ok = true, want false")
		}
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("RequireSessionID() status = %v, want 500", rec.Code)
		}
	})
}
