package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/database"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// OrgChartRepository provides data access for the three org chart collections.
type OrgChartRepository interface {
	// InsertBatch writes all records to the collection of sch in one
	// transaction. Either every record is stored or none is.
	InsertBatch(ctx context.Context, sch *schema.Schema, records []models.CanonicalRecord) (int64, error)
	// DeleteAll empties every collection.
	DeleteAll(ctx context.Context) error
	// GetOrgChart returns every collection in insertion order.
	GetOrgChart(ctx context.Context) (*models.OrgChart, error)
}

type orgChartRepository struct {
	db *database.DB
}

// NewOrgChartRepository creates a new OrgChartRepository.
func NewOrgChartRepository(db *database.DB) OrgChartRepository {
	return &orgChartRepository{db: db}
}

var _ OrgChartRepository = (*orgChartRepository)(nil)

// ============================================================================
// Writes
// ============================================================================

func (r *orgChartRepository) InsertBatch(ctx context.Context, sch *schema.Schema, records []models.CanonicalRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	fields := sch.FieldNames()
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(fields))
		for j, name := range fields {
			row[j] = rec.Value(name)
		}
		rows[i] = row
	}

	var copied int64
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{sch.Collection}, sch.Columns(), pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		copied = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", sch.Collection, err)
	}
	return copied, nil
}

func (r *orgChartRepository) DeleteAll(ctx context.Context) error {
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"ownership", "persons", "entities"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset org chart data: %w", err)
	}
	return nil
}

// ============================================================================
// Reads
// ============================================================================

func (r *orgChartRepository) GetOrgChart(ctx context.Context) (*models.OrgChart, error) {
	chart := models.NewOrgChart()

	entityRows, err := r.db.Query(ctx, `
		SELECT entity_id, entity_name, entity_tax_jurisdiction
		FROM entities
		ORDER BY row_seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	entities, err := pgx.CollectRows(entityRows, func(row pgx.CollectableRow) (models.Entity, error) {
		var e models.Entity
		err := row.Scan(&e.EntityID, &e.EntityName, &e.EntityTaxJurisdiction)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}

	ownershipRows, err := r.db.Query(ctx, `
		SELECT record_id, parent_id, child_id, ownership_perc
		FROM ownership
		ORDER BY record_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership: %w", err)
	}
	ownership, err := pgx.CollectRows(ownershipRows, func(row pgx.CollectableRow) (models.Ownership, error) {
		var o models.Ownership
		err := row.Scan(&o.RecordID, &o.ParentID, &o.ChildID, &o.OwnershipPerc)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ownership: %w", err)
	}

	personRows, err := r.db.Query(ctx, `
		SELECT person_id, person_name, person_role, entity_id
		FROM persons
		ORDER BY row_seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	persons, err := pgx.CollectRows(personRows, func(row pgx.CollectableRow) (models.Person, error) {
		var p models.Person
		err := row.Scan(&p.PersonID, &p.PersonName, &p.PersonRole, &p.EntityID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan persons: %w", err)
	}

	chart.Entities = append(chart.Entities, entities...)
	chart.Ownership = append(chart.Ownership, ownership...)
	chart.Persons = append(chart.Persons, persons...)
	return chart, nil
}

// IsUniqueViolation reports whether err was caused by a duplicate primary key.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
