package models

// Entity is a stored row of the entities collection.
type Entity struct {
	EntityID              string  `json:"ENTITY_ID"`
	EntityName            string  `json:"ENTITY_NAME"`
	EntityTaxJurisdiction *string `json:"ENTITY_TAX_JURISDICTION"`
}

// Ownership is a stored parent to child ownership edge.
type Ownership struct {
	RecordID      int64   `json:"RECORD_ID"`
	ParentID      string  `json:"PARENT_ID"`
	ChildID       string  `json:"CHILD_ID"`
	OwnershipPerc float64 `json:"OWNERSHIP_PERC"`
}

// Person is a stored row of the persons collection.
type Person struct {
	PersonID   string  `json:"PERSON_ID"`
	PersonName string  `json:"PERSON_NAME"`
	PersonRole *string `json:"PERSON_ROLE"`
	EntityID   *string `json:"ENTITY_ID"`
}

// OrgChart is the aggregate read used to render the chart.
type OrgChart struct {
	Entities  []Entity    `json:"entities"`
	Ownership []Ownership `json:"ownership"`
	Persons   []Person    `json:"persons"`
}

// NewOrgChart returns an OrgChart with non-nil empty lists so it encodes as [] rather than null.
func NewOrgChart() *OrgChart {
	return &OrgChart{
		Entities:  []Entity{},
		Ownership: []Ownership{},
		Persons:   []Person{},
	}
}
