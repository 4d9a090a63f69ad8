package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/services"
)

const (
	// uploadFormField is the multipart field carrying the workbook.
	uploadFormField = "file"
	// multipartOverhead allows for boundaries and part headers around the file.
	multipartOverhead = 64 << 10
	// maxMappingBodyBytes bounds the JSON body of a mapping request.
	maxMappingBodyBytes = 1 << 20
)

// IngestionHandler serves the upload, mapping, read and reset endpoints.
type IngestionHandler struct {
	ingestionService services.IngestionService
	maxUploadBytes   int64
	logger           *zap.Logger
}

// NewIngestionHandler creates a new IngestionHandler.
func NewIngestionHandler(ingestionService services.IngestionService, maxUploadBytes int64, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{
		ingestionService: ingestionService,
		maxUploadBytes:   maxUploadBytes,
		logger:           logger,
	}
}

// RegisterRoutes registers the ingestion handler's routes on the given mux.
// sessionMiddleware attaches the caller's session id.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux, sessionMiddleware func(http.Handler) http.Handler) {
	mux.Handle("POST /upload/{kind}", sessionMiddleware(http.HandlerFunc(h.Upload)))
	mux.Handle("POST /map-fields/{kind}", sessionMiddleware(http.HandlerFunc(h.MapFields)))
	mux.Handle("GET /org-chart-data", sessionMiddleware(http.HandlerFunc(h.OrgChartData)))
	mux.Handle("POST /reset-data", sessionMiddleware(http.HandlerFunc(h.ResetData)))
	mux.Handle("GET /api/datasets", sessionMiddleware(http.HandlerFunc(h.ListDatasets)))
}

type uploadResponse struct {
	Success bool `json:"success"`
	*services.UploadResult
}

type mapFieldsRequest struct {
	Mapping map[string]json.RawMessage `json:"mapping"`
}

type mapFieldsResponse struct {
	Success bool `json:"success"`
	*services.CommitResult
}

type resetResponse struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	UploadStatus models.UploadStatus `json:"upload_status"`
}

type datasetsResponse struct {
	Datasets []services.DatasetInfo `json:"datasets"`
}

// Upload handles POST /upload/{kind}
func (h *IngestionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseDatasetKind(w, r, h.logger)
	if !ok {
		return
	}
	sessionID, ok := RequireSessionID(w, r, h.logger)
	if !ok {
		return
	}

	bodyLimit := h.maxUploadBytes + multipartOverhead
	if r.ContentLength > bodyLimit {
		writeIngestError(w, apperrors.FileTooLarge(r.ContentLength, h.maxUploadBytes), h.logger)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeIngestError(w, apperrors.FileTooLarge(r.ContentLength, h.maxUploadBytes), h.logger)
		case errors.Is(err, http.ErrMissingFile):
			h.writeError(w, http.StatusBadRequest, "no_file", "No file uploaded")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form with a file field")
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.writeError(w, http.StatusBadRequest, "no_file", "No file selected")
		return
	}

	// One byte past the cap is enough for the service to reject the upload.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeIngestError(w, apperrors.UnreadableFile("failed to read the uploaded file", err), h.logger)
		return
	}

	result, err := h.ingestionService.Upload(r.Context(), sessionID, kind, header.Filename, data)
	if err != nil {
		writeIngestError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: result}); err != nil {
		h.logger.Error("Failed to write upload response", zap.Error(err))
	}
}

// MapFields handles POST /map-fields/{kind}
func (h *IngestionHandler) MapFields(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseDatasetKind(w, r, h.logger)
	if !ok {
		return
	}
	sessionID, ok := RequireSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req mapFieldsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMappingBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a mapping object")
		return
	}

	mapping := models.ColumnMapping(jsonutil.FlexibleStringMap(req.Mapping))
	if len(mapping) == 0 {
		h.writeError(w, http.StatusBadRequest, "no_mapping", "No field mapping provided")
		return
	}

	result, err := h.ingestionService.Map(r.Context(), sessionID, kind, mapping)
	if err != nil {
		writeIngestError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, mapFieldsResponse{Success: true, CommitResult: result}); err != nil {
		h.logger.Error("Failed to write map response", zap.Error(err))
	}
}

// OrgChartData handles GET /org-chart-data
func (h *IngestionHandler) OrgChartData(w http.ResponseWriter, r *http.Request) {
	chart, err := h.ingestionService.OrgChart(r.Context())
	if err != nil {
		h.logger.Error("Failed to read org chart", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch data")
		return
	}

	if err := WriteJSON(w, http.StatusOK, chart); err != nil {
		h.logger.Error("Failed to write org chart response", zap.Error(err))
	}
}

// ResetData handles POST /reset-data
func (h *IngestionHandler) ResetData(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.ingestionService.Reset(r.Context(), sessionID)
	if err != nil {
		writeIngestError(w, err, h.logger)
		return
	}

	resp := resetResponse{
		Success:      true,
		Message:      "All data reset successfully",
		UploadStatus: status,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write reset response", zap.Error(err))
	}
}

// ListDatasets handles GET /api/datasets
func (h *IngestionHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := RequireSessionID(w, r, h.logger)
	if !ok {
		return
	}

	infos, err := h.ingestionService.Datasets(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to list datasets", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list datasets")
		return
	}

	if err := WriteJSON(w, http.StatusOK, datasetsResponse{Datasets: infos}); err != nil {
		h.logger.Error("Failed to write datasets response", zap.Error(err))
	}
}

func (h *IngestionHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
