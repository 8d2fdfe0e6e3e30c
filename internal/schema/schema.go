// Package schema introspects the target database and serves immutable,
// case-insensitive snapshots of its tables and columns.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnavailable reports that metadata could not be read. It is always wrapped
// together with the underlying cause.
var ErrUnavailable = errors.New("schema unavailable")

type Column struct {
	Name     string
	DataType string
	// Key carries the information_schema column_key flag (PRI, UNI, MUL) when
	// the dialect exposes one.
	Key string
}

type table struct {
	name    string
	columns []Column
	index   map[string]struct{}
}

// Snapshot is a read-only view of the database schema at one point in time.
type Snapshot struct {
	dialect string
	order   []string
	tables  map[string]*table
	columns map[string]struct{}
}

// Builder accumulates columns in metadata order before freezing them into a
// Snapshot.
type Builder struct {
	snap *Snapshot
}

func NewBuilder(dialect string) *Builder {
	return &Builder{snap: &Snapshot{
		dialect: dialect,
		tables:  map[string]*table{},
		columns: map[string]struct{}{},
	}}
}

func (b *Builder) Add(tableName string, col Column) *Builder {
	key := strings.ToLower(tableName)
	t, ok := b.snap.tables[key]
	if !ok {
		t = &table{name: tableName, index: map[string]struct{}{}}
		b.snap.tables[key] = t
		b.snap.order = append(b.snap.order, key)
	}
	colKey := strings.ToLower(col.Name)
	if _, dup := t.index[colKey]; dup {
		return b
	}
	t.columns = append(t.columns, col)
	t.index[colKey] = struct{}{}
	b.snap.columns[colKey] = struct{}{}
	return b
}

func (b *Builder) Build() *Snapshot {
	snap := b.snap
	b.snap = nil
	return snap
}

func (s *Snapshot) Dialect() string {
	return s.dialect
}

// Tables returns table names in their original casing, sorted case-insensitively.
func (s *Snapshot) Tables() []string {
	keys := append([]string(nil), s.order...)
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.tables[key].name)
	}
	return out
}

// ColumnsOf returns the ordered column names of table, or nil if it is unknown.
func (s *Snapshot) ColumnsOf(tableName string) []string {
	t, ok := s.tables[strings.ToLower(tableName)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		out = append(out, col.Name)
	}
	return out
}

// Columns returns the full column metadata of table.
func (s *Snapshot) Columns(tableName string) []Column {
	t, ok := s.tables[strings.ToLower(tableName)]
	if !ok {
		return nil
	}
	return append([]Column(nil), t.columns...)
}

func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.tables[strings.ToLower(name)]
	return ok
}

// HasColumn reports whether any table has a column called name.
func (s *Snapshot) HasColumn(name string) bool {
	_, ok := s.columns[strings.ToLower(name)]
	return ok
}

func (s *Snapshot) TableHasColumn(tableName, column string) bool {
	t, ok := s.tables[strings.ToLower(tableName)]
	if !ok {
		return false
	}
	_, ok = t.index[strings.ToLower(column)]
	return ok
}

// Describe renders the snapshot as CREATE TABLE statements for a model prompt.
func (s *Snapshot) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s Dialect Schema --\n\n", s.dialect)
	for _, key := range s.order {
		t := s.tables[key]
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.name)
		for i, col := range t.columns {
			b.WriteString("    ")
			b.WriteString(col.Name)
			if col.DataType != "" {
				b.WriteString(" ")
				b.WriteString(col.DataType)
			}
			switch strings.ToUpper(col.Key) {
			case "PRI":
				b.WriteString(" PRIMARY KEY")
			case "UNI":
				b.WriteString(" UNIQUE")
			case "MUL":
				b.WriteString(" (INDEX)")
			}
			if i < len(t.columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n\n")
	}
	return b.String()
}
