package models

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
)

// DatasetKind identifies one of the record categories the system ingests.
// The string value is also the URL segment used by the HTTP surface.
type DatasetKind string

const (
	DatasetEntities  DatasetKind = "entities"
	DatasetOwnership DatasetKind = "ownership"
	DatasetPersons   DatasetKind = "persons"
)

// AllDatasetKinds returns the closed set of kinds in display order.
func AllDatasetKinds() []DatasetKind {
	return []DatasetKind{DatasetEntities, DatasetOwnership, DatasetPersons}
}

// Valid reports whether k is one of the known kinds.
func (k DatasetKind) Valid() bool {
	switch k {
	case DatasetEntities, DatasetOwnership, DatasetPersons:
		return true
	}
	return false
}

// ParseDatasetKind converts a path value into a DatasetKind.
func ParseDatasetKind(s string) (DatasetKind, error) {
	k := DatasetKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidDatasetKind, s)
	}
	return k, nil
}
