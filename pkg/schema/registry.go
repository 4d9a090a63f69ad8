// Package schema holds the canonical record definitions for each dataset kind.
// The registry is built once at startup and shared read-only by every component.
package schema

import (
	_ "embed"
	"fmt"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

//go:embed schemas.yaml
var defaultDocument []byte

// FieldType is the declared type of a canonical field.
type FieldType string

const (
	TypeText   FieldType = "text"
	TypeNumber FieldType = "number"
)

// NumericRange is an inclusive [Min, Max] bound.
type NumericRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Field describes one canonical field.
type Field struct {
	Name      string        `yaml:"name"`
	Column    string        `yaml:"column"`
	Type      FieldType     `yaml:"type"`
	Required  bool          `yaml:"required"`
	MinLength int           `yaml:"min_length"`
	Range     *NumericRange `yaml:"range"`
	Aliases   []string      `yaml:"aliases"`
}

// Schema is the canonical schema of one dataset kind.
type Schema struct {
	Kind        models.DatasetKind `yaml:"kind"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Collection  string             `yaml:"collection"`
	Fields      []Field            `yaml:"fields"`

	index map[string]int
}

// FieldNames returns the canonical field names in declared order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// field looks up a field by canonical name.
func (s *Schema) field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Columns returns the sink column names in declared field order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}
	return cols
}

// RecordNoun is the singular noun for one record of this kind, e.g. "entity".
func (s *Schema) RecordNoun() string {
	return inflection.Singular(string(s.Kind))
}

// Registry maps every dataset kind to its schema.
type Registry struct {
	schemas map[models.DatasetKind]*Schema
}

type document struct {
	Datasets []*Schema `yaml:"datasets"`
}

// Default returns the registry built from the embedded schema document.
func Default() (*Registry, error) {
	return Load(defaultDocument)
}

// MustDefault is Default for program initialisation and tests.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema document: %v", err))
	}
	return r
}

// Load parses a schema document and checks it describes every kind exactly once.
func Load(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}

	r := &Registry{schemas: make(map[models.DatasetKind]*Schema, len(doc.Datasets))}
	for _, s := range doc.Datasets {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("unknown dataset kind %q", s.Kind)
		}
		if _, dup := r.schemas[s.Kind]; dup {
			return nil, fmt.Errorf("dataset kind %q defined twice", s.Kind)
		}
		if err := s.init(); err != nil {
			return nil, fmt.Errorf("dataset kind %q: %w", s.Kind, err)
		}
		r.schemas[s.Kind] = s
	}

	for _, k := range models.AllDatasetKinds() {
		if _, ok := r.schemas[k]; !ok {
			return nil, fmt.Errorf("dataset kind %q has no schema", k)
		}
	}
	return r, nil
}

func (s *Schema) init() error {
	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" || f.Column == "" {
			return fmt.Errorf("field %d: name and column are required", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return fmt.Errorf("field %q defined twice", f.Name)
		}
		switch f.Type {
		case TypeText:
			if f.Range != nil {
				return fmt.Errorf("field %q: range is only valid for number fields", f.Name)
			}
		case TypeNumber:
			if f.MinLength != 0 {
				return fmt.Errorf("field %q: min_length is only valid for text fields", f.Name)
			}
			if f.Range != nil && f.Range.Min > f.Range.Max {
				return fmt.Errorf("field %q: range min exceeds max", f.Name)
			}
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		s.index[f.Name] = i
	}
	return nil
}

// SchemaFor returns the schema of kind. It returns nil only for an invalid kind.
func (r *Registry) SchemaFor(kind models.DatasetKind) *Schema {
	return r.schemas[kind]
}

// Schemas returns every schema in display order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.schemas))
	for _, k := range models.AllDatasetKinds() {
		out = append(out, r.schemas[k])
	}
	return out
}
