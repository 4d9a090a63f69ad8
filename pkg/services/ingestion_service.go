package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/audit"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/logging"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/mapping"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/metrics"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/repositories"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/staging"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/tabular"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/validation"
)

// DatasetParser turns uploaded bytes into a ParsedDataset.
type DatasetParser interface {
	ParseBytes(data []byte) (*models.ParsedDataset, error)
}

// IngestionService drives the upload, map and commit workflow for each
// (session, dataset kind) pair.
type IngestionService interface {
	// Upload parses a file and stages it for mapping. Re-uploading replaces
	// the staged dataset of the same kind.
	Upload(ctx context.Context, sessionID string, kind models.DatasetKind, filename string, data []byte) (*UploadResult, error)

	// Map applies mapping to the staged dataset, validates every row and
	// commits the batch atomically. The staged dataset is consumed on success
	// and kept on any client error so the user can retry the mapping.
	Map(ctx context.Context, sessionID string, kind models.DatasetKind, m models.ColumnMapping) (*CommitResult, error)

	// Reset empties every collection and clears the session's upload status.
	Reset(ctx context.Context, sessionID string) (models.UploadStatus, error)

	// OrgChart returns the stored collections for rendering.
	OrgChart(ctx context.Context) (*models.OrgChart, error)

	// Datasets describes every dataset kind together with the session's progress on it.
	Datasets(ctx context.Context, sessionID string) ([]DatasetInfo, error)
}

// maxSuspiciousReported caps audit events for one batch.
const maxSuspiciousReported = 20

// IngestionConfig bounds uploads and staging.
type IngestionConfig struct {
	MaxUploadBytes int64
	StagingTTL     time.Duration
}

// UploadResult is what the mapping UI needs after an upload.
type UploadResult struct {
	Kind             models.DatasetKind   `json:"kind"`
	Name             string               `json:"name"`
	Columns          []string             `json:"incoming_fields"`
	Fields           []string             `json:"standard_fields"`
	SuggestedMapping models.ColumnMapping `json:"suggested_mapping"`
	RowCount         int                  `json:"row_count"`
}

// CommitResult reports a successful map and commit.
type CommitResult struct {
	Kind             models.DatasetKind  `json:"kind"`
	RecordsProcessed int64               `json:"records_processed"`
	Message          string              `json:"message"`
	UploadStatus     models.UploadStatus `json:"upload_status"`
}

// FieldInfo describes one canonical field.
type FieldInfo struct {
	Name     string           `json:"name"`
	Type     schema.FieldType `json:"type"`
	Required bool             `json:"required"`
}

// DatasetInfo is one entry of the dataset catalogue.
type DatasetInfo struct {
	Kind        models.DatasetKind `json:"kind"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Fields      []FieldInfo        `json:"fields"`
	Uploaded    bool               `json:"uploaded"`
	Phase       models.StagePhase  `json:"phase"`
	Columns     []string           `json:"columns,omitempty"`
}

type ingestionService struct {
	registry  *schema.Registry
	parser    DatasetParser
	staging   staging.Store
	sessions  sessions.Store
	repo      repositories.OrgChartRepository
	validator *validation.Validator
	metrics   *metrics.Metrics
	auditor   *audit.Auditor
	cfg       IngestionConfig
	now       func() time.Time
	logger    *zap.Logger
}

func NewIngestionService(
	registry *schema.Registry,
	parser DatasetParser,
	stagingStore staging.Store,
	sessionStore sessions.Store,
	repo repositories.OrgChartRepository,
	validator *validation.Validator,
	m *metrics.Metrics,
	auditor *audit.Auditor,
	cfg IngestionConfig,
	logger *zap.Logger,
) IngestionService {
	return &ingestionService{
		registry:  registry,
		parser:    parser,
		staging:   stagingStore,
		sessions:  sessionStore,
		repo:      repo,
		validator: validator,
		metrics:   m,
		auditor:   auditor,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.Named("ingestion-service"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

// ============================================================================
// Upload
// ============================================================================

func (s *ingestionService) Upload(ctx context.Context, sessionID string, kind models.DatasetKind, filename string, data []byte) (result *UploadResult, err error) {
	defer func() { s.metrics.ObserveUpload(string(kind), outcome(err)) }()

	sch, err := s.schemaFor(kind)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if !tabular.HasSupportedExtension(filename) {
		return nil, apperrors.UnreadableFile(
			fmt.Sprintf("unsupported file type, upload a %s workbook", tabular.Extension), nil)
	}
	if size := int64(len(data)); s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return nil, apperrors.FileTooLarge(size, s.cfg.MaxUploadBytes)
	}

	// Make room before staging anything new.
	s.sweepStaging(ctx)

	ds, err := s.parser.ParseBytes(data)
	if err != nil {
		s.logger.Info("Rejected unreadable upload",
			zap.String("kind", string(kind)),
			zap.String("filename", logging.SanitizeFilename(filename)),
			zap.Error(err))
		return nil, err
	}

	handle, err := s.staging.Put(ctx, sessionID, kind, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	stagedAt := s.now()
	_, err = s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		entry := state.Dataset(kind)
		if err := transition(entry, models.EventUpload); err != nil {
			return err
		}
		entry.Handle = handle
		entry.Columns = append([]string(nil), ds.Columns...)
		entry.StagedAt = stagedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Staged upload",
		zap.String("kind", string(kind)),
		zap.String("filename", logging.SanitizeFilename(filename)),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))

	return &UploadResult{
		Kind:             kind,
		Name:             sch.Name,
		Columns:          ds.Columns,
		Fields:           sch.FieldNames(),
		SuggestedMapping: mapping.Suggest(ds.Columns, sch),
		RowCount:         ds.RowCount(),
	}, nil
}

// ============================================================================
// Map & Commit
// ============================================================================

func (s *ingestionService) Map(ctx context.Context, sessionID string, kind models.DatasetKind, m models.ColumnMapping) (result *CommitResult, err error) {
	var committed int64
	defer func() { s.metrics.ObserveCommit(string(kind), outcome(err), committed) }()

	sch, err := s.schemaFor(kind)
	if err != nil {
		return nil, err
	}

	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entry := state.Dataset(kind)
	if entry.Phase != models.PhaseStaged || entry.Handle == "" {
		return nil, apperrors.StaleStaging(fmt.Sprintf("no uploaded %s file found, please upload the file again", sch.Name))
	}
	handle := entry.Handle

	ds, err := s.staging.Get(ctx, handle)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.expire(ctx, sessionID, kind, handle)
		return nil, apperrors.StaleStaging(fmt.Sprintf("the uploaded %s file has expired, please upload the file again", sch.Name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staged upload: %w", err)
	}

	records, err := mapping.Apply(ds, sch, m)
	if err != nil {
		s.reject(sessionID, kind, err)
		return nil, err
	}
	if _, err := s.validator.Validate(records, sch); err != nil {
		s.reject(sessionID, kind, err)
		return nil, err
	}
	for _, v := range validation.ScanSuspicious(records, sch, maxSuspiciousReported) {
		s.auditor.LogSuspiciousValue(sessionID, string(kind), audit.SuspiciousValueDetails{
			Row:         v.Row,
			Field:       v.Field,
			Reason:      v.Reason,
			Fingerprint: v.Fingerprint,
		})
	}

	n, err := s.repo.InsertBatch(ctx, sch, records)
	if err != nil {
		s.logger.Error("Failed to write batch",
			zap.String("kind", string(kind)),
			zap.Int("records", len(records)),
			zap.String("error", logging.SanitizeError(err)))
		sinkErr := apperrors.SinkWrite(sinkWriteMessage(sch, err), err)
		s.reject(sessionID, kind, sinkErr)
		return nil, sinkErr
	}
	committed = n
	s.auditor.LogCommit(sessionID, string(kind), n)

	if err := s.staging.Delete(ctx, handle); err != nil {
		// The sweep reclaims it; the batch is already stored.
		s.logger.Warn("Failed to delete committed staged dataset", zap.Error(err))
	}

	status, err := s.markCommitted(ctx, sessionID, kind, handle)
	if err != nil {
		// The batch is stored, so the commit is still reported. The session
		// keeps pointing at the deleted handle and a repeated map reports it
		// as stale instead of writing the batch twice.
		s.logger.Error("Failed to record committed dataset in session",
			zap.String("kind", string(kind)),
			zap.Error(err))
		status = state.Clone().UploadStatus
		status[kind] = true
	}

	s.logger.Info("Committed dataset",
		zap.String("kind", string(kind)),
		zap.Int64("records", n),
		zap.Any("mapping", mapping.Effective(ds, sch, m)))

	return &CommitResult{
		Kind:             kind,
		RecordsProcessed: n,
		Message:          fmt.Sprintf("%s successfully processed!", sch.Name),
		UploadStatus:     status,
	}, nil
}

// markCommitted records a stored batch for kind. A newer upload of the same
// kind that replaced handle stays staged.
func (s *ingestionService) markCommitted(ctx context.Context, sessionID string, kind models.DatasetKind, handle string) (models.UploadStatus, error) {
	updated, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		state.UploadStatus[kind] = true
		entry := state.Dataset(kind)
		if entry.Handle != handle {
			return nil
		}
		if err := transition(entry, models.EventCommit); err != nil {
			return err
		}
		clearStaged(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.UploadStatus, nil
}

// reject audits a batch that was not stored.
func (s *ingestionService) reject(sessionID string, kind models.DatasetKind, err error) {
	details := audit.RejectionDetails{Reason: err.Error()}
	if ie, ok := apperrors.AsIngestError(err); ok {
		details.Reason = ie.Kind.Error()
		details.Field = ie.Field
		if ie.HasRow() {
			row := ie.Row
			details.Row = &row
		}
	}
	s.auditor.LogRejection(sessionID, string(kind), details)
}

// expire moves a staged entry whose data disappeared back to Empty, unless
// it was re-uploaded in the meantime.
func (s *ingestionService) expire(ctx context.Context, sessionID string, kind models.DatasetKind, handle string) {
	_, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		entry := state.Dataset(kind)
		if entry.Handle != handle {
			return nil
		}
		if err := transition(entry, models.EventExpire); err != nil {
			return err
		}
		clearStaged(entry)
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to expire staged upload", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// ============================================================================
// Reset & reads
// ============================================================================

func (s *ingestionService) Reset(ctx context.Context, sessionID string) (models.UploadStatus, error) {
	if err := s.repo.DeleteAll(ctx); err != nil {
		s.logger.Error("Failed to reset data", zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.SinkWrite("failed to reset data", err)
	}

	updated, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		state.UploadStatus = models.NewUploadStatus()
		for _, kind := range models.AllDatasetKinds() {
			if err := transition(state.Dataset(kind), models.EventReset); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.LogReset(sessionID)
	s.logger.Info("Reset all org chart data")
	return updated.UploadStatus, nil
}

func (s *ingestionService) OrgChart(ctx context.Context) (*models.OrgChart, error) {
	chart, err := s.repo.GetOrgChart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read org chart: %w", err)
	}
	return chart, nil
}

func (s *ingestionService) Datasets(ctx context.Context, sessionID string) ([]DatasetInfo, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	schemas := s.registry.Schemas()
	out := make([]DatasetInfo, 0, len(schemas))
	for _, sch := range schemas {
		fields := make([]FieldInfo, len(sch.Fields))
		for i, f := range sch.Fields {
			fields[i] = FieldInfo{Name: f.Name, Type: f.Type, Required: f.Required}
		}
		info := DatasetInfo{
			Kind:        sch.Kind,
			Name:        sch.Name,
			Description: sch.Description,
			Fields:      fields,
			Uploaded:    state.UploadStatus[sch.Kind],
			Phase:       state.Phase(sch.Kind),
		}
		if info.Phase == models.PhaseStaged {
			info.Columns = state.Datasets[sch.Kind].Columns
		}
		out = append(out, info)
	}
	return out, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *ingestionService) schemaFor(kind models.DatasetKind) (*schema.Schema, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidDatasetKind, kind)
	}
	sch := s.registry.SchemaFor(kind)
	if sch == nil {
		return nil, fmt.Errorf("no schema registered for %q", kind)
	}
	return sch, nil
}

func (s *ingestionService) sweepStaging(ctx context.Context) {
	removed, err := s.staging.Sweep(ctx, s.cfg.StagingTTL)
	if err != nil {
		s.logger.Warn("Staging sweep failed", zap.Error(err))
	}
	s.metrics.ObserveStagingSwept(removed)
}

func transition(entry *models.DatasetSession, event models.StageEvent) error {
	next, err := models.NextPhase(entry.Phase, event)
	if err != nil {
		return err
	}
	entry.Phase = next
	return nil
}

func clearStaged(entry *models.DatasetSession) {
	entry.Handle = ""
	entry.Columns = nil
	entry.StagedAt = time.Time{}
}

func sinkWriteMessage(sch *schema.Schema, err error) string {
	if repositories.IsUniqueViolation(err) {
		return fmt.Sprintf("duplicate %s: the %s data repeats an id or contains one that is already stored",
			sch.Fields[0].Name, sch.RecordNoun())
	}
	return fmt.Sprintf("failed to save %s records", sch.RecordNoun())
}

// outcome classifies err for metrics.
func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if errors.Is(err, apperrors.ErrSinkWrite) {
		return metrics.OutcomeFailure
	}
	if _, ok := apperrors.AsIngestError(err); ok || errors.Is(err, apperrors.ErrInvalidDatasetKind) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailure
}
