// Package models holds the static table catalog and the in-memory tabular
// representation that moves between the source, the object store and the
// warehouse.
package models

import (
	"fmt"
	"regexp"
)

// Category tells whether a table is a dimension or a fact.
type Category string

const (
	Dimension Category = "dimension"
	Fact      Category = "fact"
)

// CastRule declares the semantic type a column must have after cleaning.
type CastRule struct {
	Column string     `yaml:"column"`
	Type   ColumnType `yaml:"type"`
}

// TableDescriptor is the static metadata of one source/warehouse table.
type TableDescriptor struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	// DateColumn filters extraction to a single day. Empty means the whole
	// table is extracted on every run.
	DateColumn string     `yaml:"dateColumn,omitempty"`
	Casts      []CastRule `yaml:"casts,omitempty"`
	// Columns, when set, lists the columns every partition must carry.
	Columns []string `yaml:"columns,omitempty"`
}

// HasDateColumn reports whether extraction is partitioned by day.
func (t TableDescriptor) HasDateColumn() bool {
	return t.DateColumn != ""
}

// Catalog is the ordered list of tables handled by the pipeline.
// Order within a category is the load order.
type Catalog struct {
	Tables []TableDescriptor `yaml:"tables"`
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is safe to use as a bare SQL identifier.
func IsIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Lookup returns the descriptor for the named table.
func (c *Catalog) Lookup(name string) (TableDescriptor, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDescriptor{}, false
}

// ByCategory returns the tables of one category in catalog order.
func (c *Catalog) ByCategory(cat Category) []TableDescriptor {
	var out []TableDescriptor
	for _, t := range c.Tables {
		if t.Category == cat {
			out = append(out, t)
		}
	}
	return out
}

// Dimensions returns the dimension tables in load order.
func (c *Catalog) Dimensions() []TableDescriptor { return c.ByCategory(Dimension) }

// Facts returns the fact tables in load order.
func (c *Catalog) Facts() []TableDescriptor { return c.ByCategory(Fact) }

// Validate checks names, categories and cast types.
func (c *Catalog) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalog has no tables")
	}
	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if !IsIdentifier(t.Name) {
			return fmt.Errorf("invalid table name %q", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("table %s declared twice", t.Name)
		}
		seen[t.Name] = true

		if t.Category != Dimension && t.Category != Fact {
			return fmt.Errorf("table %s: unknown category %q", t.Name, t.Category)
		}
		if t.DateColumn != "" && !IsIdentifier(t.DateColumn) {
			return fmt.Errorf("table %s: invalid date column %q", t.Name, t.DateColumn)
		}
		for _, r := range t.Casts {
			if !IsIdentifier(r.Column) {
				return fmt.Errorf("table %s: invalid cast column %q", t.Name, r.Column)
			}
			if !r.Type.Valid() {
				return fmt.Errorf("table %s: column %s: unknown type %q", t.Name, r.Column, r.Type)
			}
		}
		for _, col := range t.Columns {
			if !IsIdentifier(col) {
				return fmt.Errorf("table %s: invalid column %q", t.Name, col)
			}
		}
	}
	return nil
}

// DefaultCatalog returns the healthcare star schema handled in production.
// Reference dimensions have no date column and are re-extracted in full.
func DefaultCatalog() *Catalog {
	return &Catalog{Tables: []TableDescriptor{
		{Name: "dim_temps", Category: Dimension, DateColumn: "date"},
		{Name: "dim_patient", Category: Dimension, Casts: []CastRule{
			{Column: "date_naissance", Type: TypeDate},
			{Column: "age", Type: TypeInteger},
		}},
		{Name: "dim_medecin", Category: Dimension, Casts: []CastRule{
			{Column: "experience_annees", Type: TypeInteger},
		}},
		{Name: "dim_etablissement", Category: Dimension},
		{Name: "dim_diagnostic", Category: Dimension},
		{Name: "dim_medicament", Category: Dimension, Casts: []CastRule{
			{Column: "prix", Type: TypeFloat},
		}},
		{Name: "fact_consultation", Category: Fact, DateColumn: "date_consultation", Casts: []CastRule{
			{Column: "date_consultation", Type: TypeDate},
			{Column: "duree_minutes", Type: TypeInteger},
		}},
		{Name: "fact_traitement", Category: Fact, DateColumn: "date_traitement"},
		{Name: "fact_analyse", Category: Fact, DateColumn: "date_analyse"},
		{Name: "fact_occupation_etablissement", Category: Fact, DateColumn: "date_occupation"},
	}}
}
