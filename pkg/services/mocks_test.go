package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/repositories"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
)

// fakeParser returns the dataset registered under the upload's bytes.
type fakeParser struct {
	datasets map[string]*models.ParsedDataset
	calls    int
}

func newFakeParser() *fakeParser {
	return &fakeParser{datasets: make(map[string]*models.ParsedDataset)}
}

func (p *fakeParser) add(content string, ds *models.ParsedDataset) []byte {
	p.datasets[content] = ds
	return []byte(content)
}

func (p *fakeParser) ParseBytes(data []byte) (*models.ParsedDataset, error) {
	p.calls++
	ds, ok := p.datasets[string(data)]
	if !ok {
		return nil, apperrors.UnreadableFile("file is not a readable workbook", fmt.Errorf("zip: not a valid zip file"))
	}
	return ds, nil
}

// mockOrgChartRepo stores batches in memory and applies each one all or nothing.
type mockOrgChartRepo struct {
	mu        sync.Mutex
	rows      map[string][]models.CanonicalRecord
	insertErr error
	deleteErr error
	inserts   int
	// onInsert runs before a batch is written, outside the lock.
	onInsert func()
}

func newMockOrgChartRepo() *mockOrgChartRepo {
	return &mockOrgChartRepo{rows: make(map[string][]models.CanonicalRecord)}
}

var _ repositories.OrgChartRepository = (*mockOrgChartRepo)(nil)

func (r *mockOrgChartRepo) InsertBatch(ctx context.Context, sch *schema.Schema, records []models.CanonicalRecord) (int64, error) {
	if r.onInsert != nil {
		r.onInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.rows[sch.Collection] = append(r.rows[sch.Collection], records...)
	return int64(len(records)), nil
}

func (r *mockOrgChartRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.rows = make(map[string][]models.CanonicalRecord)
	return nil
}

func (r *mockOrgChartRepo) GetOrgChart(ctx context.Context) (*models.OrgChart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chart := models.NewOrgChart()
	for _, rec := range r.rows["entities"] {
		chart.Entities = append(chart.Entities, models.Entity{
			EntityID:              rec["ENTITY_ID"].(string),
			EntityName:            rec["ENTITY_NAME"].(string),
			EntityTaxJurisdiction: optString(rec["ENTITY_TAX_JURISDICTION"]),
		})
	}
	for i, rec := range r.rows["ownership"] {
		chart.Ownership = append(chart.Ownership, models.Ownership{
			RecordID:      int64(i + 1),
			ParentID:      rec["PARENT_ID"].(string),
			ChildID:       rec["CHILD_ID"].(string),
			OwnershipPerc: rec["OWNERSHIP_PERC"].(float64),
		})
	}
	for _, rec := range r.rows["persons"] {
		chart.Persons = append(chart.Persons, models.Person{
			PersonID:   rec["PERSON_ID"].(string),
			PersonName: rec["PERSON_NAME"].(string),
			PersonRole: optString(rec["PERSON_ROLE"]),
			EntityID:   optString(rec["ENTITY_ID"]),
		})
	}
	return chart, nil
}

func optString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// sweepFailingStore fails Sweep and delegates everything else.
type sweepFailingStore struct {
	inner interface {
		Put(ctx context.Context, sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) (string, error)
		Get(ctx context.Context, handle string) (*models.ParsedDataset, error)
		Delete(ctx context.Context, handle string) error
	}
}

func (s *sweepFailingStore) Put(ctx context.Context, sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) (string, error) {
	return s.inner.Put(ctx, sessionID, kind, ds)
}

func (s *sweepFailingStore) Get(ctx context.Context, handle string) (*models.ParsedDataset, error) {
	return s.inner.Get(ctx, handle)
}

func (s *sweepFailingStore) Delete(ctx context.Context, handle string) error {
	return s.inner.Delete(ctx, handle)
}

func (s *sweepFailingStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, fmt.Errorf("disk unavailable")
}

// faultySessionStore delegates to a real store and fails updates while failUpdate is set.
type faultySessionStore struct {
	sessions.Store
	failUpdate bool
}

func (s *faultySessionStore) Update(ctx context.Context, id string, fn sessions.UpdateFunc) (*models.SessionState, error) {
	if s.failUpdate {
		return nil, fmt.Errorf("session store unavailable")
	}
	return s.Store.Update(ctx, id, fn)
}
