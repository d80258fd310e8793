// Package schema introspects a connected data source into an immutable
// Descriptor and caches the current snapshot for prompt construction.
package schema

import (
	"context"
	"errors"
	"sort"
	"time"
)

var ErrUnavailable = errors.New("schema unavailable")

// Descriptor is a point-in-time snapshot of the connected database. A
// Descriptor is never mutated after it has been published by a Catalog.
type Descriptor struct {
	Dialect     string
	Tables      map[string]Table
	RefreshedAt time.Time
}

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
	ForeignKeys []ForeignKey
	Metadata    Metadata
	Indexes     map[string]Index
}

type Column struct {
	Name          string
	DeclaredType  string
	BaseType      string
	Nullable      bool
	Default       *string
	AutoIncrement bool
	Comment       string
	IsPrimary     bool
	IsUnique      bool
	IsIndexed     bool
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

type Metadata struct {
	Comment       string
	EstimatedRows int64
}

type Index struct {
	Columns []string
	Unique  bool
}

// Relationship is a foreign key seen from the whole database.
type Relationship struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

type Introspector interface {
	Introspect(ctx context.Context) (*Descriptor, error)
}

type IntrospectorFunc func(ctx context.Context) (*Descriptor, error)

func (f IntrospectorFunc) Introspect(ctx context.Context) (*Descriptor, error) {
	return f(ctx)
}

func (d *Descriptor) TableNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Descriptor) Relationships() []Relationship {
	var out []Relationship
	for _, name := range d.TableNames() {
		for _, fk := range d.Tables[name].ForeignKeys {
			out = append(out, Relationship{Table: name, Column: fk.Column, RefTable: fk.RefTable, RefColumn: fk.RefColumn})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.RefTable != b.RefTable {
			return a.RefTable < b.RefTable
		}
		return a.RefColumn < b.RefColumn
	})
	return out
}
