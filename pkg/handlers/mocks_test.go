package handlers

import (
	"context"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/services"
)

// mockIngestionService is a configurable IngestionService for handler tests.
type mockIngestionService struct {
	uploadResult *services.UploadResult
	commitResult *services.CommitResult
	resetStatus  models.UploadStatus
	chart        *models.OrgChart
	datasets     []services.DatasetInfo
	err          error

	// Captured arguments of the last call.
	sessionID string
	kind      models.DatasetKind
	filename  string
	data      []byte
	mapping   models.ColumnMapping
}

var _ services.IngestionService = (*mockIngestionService)(nil)

func (m *mockIngestionService) Upload(ctx context.Context, sessionID string, kind models.DatasetKind, filename string, data []byte) (*services.UploadResult, error) {
	m.sessionID, m.kind, m.filename, m.data = sessionID, kind, filename, data
	if m.err != nil {
		return nil, m.err
	}
	return m.uploadResult, nil
}

func (m *mockIngestionService) Map(ctx context.Context, sessionID string, kind models.DatasetKind, mapping models.ColumnMapping) (*services.CommitResult, error) {
	m.sessionID, m.kind, m.mapping = sessionID, kind, mapping
	if m.err != nil {
		return nil, m.err
	}
	return m.commitResult, nil
}

func (m *mockIngestionService) Reset(ctx context.Context, sessionID string) (models.UploadStatus, error) {
	m.sessionID = sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.resetStatus, nil
}

func (m *mockIngestionService) OrgChart(ctx context.Context) (*models.OrgChart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.chart == nil {
		return models.NewOrgChart(), nil
	}
	return m.chart, nil
}

func (m *mockIngestionService) Datasets(ctx context.Context, sessionID string) ([]services.DatasetInfo, error) {
	m.sessionID = sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.datasets, nil
}
