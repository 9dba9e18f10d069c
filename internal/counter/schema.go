// Package counter defines named uint64 counter schemas and the per-thread
// counter banks built on them.
//
// A Schema is an ordered list of field names. Zeroing, summing and exporting
// are derived from the schema, so adding a field to a schema is the only
// change needed to get it aggregated and exposed.
package counter

import "fmt"

// Field indexes a field within a Schema.
type Field int

// Schema is an ordered, immutable set of named 64-bit counter fields.
type Schema struct {
	name   string
	fields []string
	index  map[string]Field
}

// NamedValue is a single exported field.
type NamedValue struct {
	Name  string
	Value uint64
}

// NewSchema creates a schema from the given field names.
// It panics on empty or duplicate names; schemas are declared at package level.
func NewSchema(name string, fields ...string) *Schema {
	s := &Schema{
		name:   name,
		fields: make([]string, len(fields)),
		index:  make(map[string]Field, len(fields)),
	}
	for i, f := range fields {
		if f == "" {
			panic(fmt.Sprintf("counter: schema %q: empty field name at %d", name, i))
		}
		if _, dup := s.index[f]; dup {
			panic(fmt.Sprintf("counter: schema %q: duplicate field %q", name, f))
		}
		s.fields[i] = f
		s.index[f] = Field(i)
	}
	return s
}

// SchemaName returns the schema's name.
func (s *Schema) SchemaName() string { return s.name }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Name returns the name of field f.
func (s *Schema) Name(f Field) string { return s.fields[f] }

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.index[name]
	return f, ok
}

// Fields returns a copy of the field names in schema order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Zero returns an all-zero value set for this schema.
func (s *Schema) Zero() Values {
	return make(Values, len(s.fields))
}

// Export returns the values as ordered name/value pairs.
func (s *Schema) Export(v Values) []NamedValue {
	out := make([]NamedValue, len(s.fields))
	for i, name := range s.fields {
		out[i] = NamedValue{Name: name, Value: v[i]}
	}
	return out
}

// Map returns the values keyed by field name.
func (s *Schema) Map(v Values) map[string]uint64 {
	out := make(map[string]uint64, len(s.fields))
	for i, name := range s.fields {
		out[name] = v[i]
	}
	return out
}

// Values is a plain snapshot of a counter, indexed by Field.
type Values []uint64

// Add adds o into v field by field. Overflow wraps.
// Both value sets must belong to the same schema.
func (v Values) Add(o Values) {
	for i := range v {
		v[i] += o[i]
	}
}

// Get returns the value of field f.
func (v Values) Get(f Field) uint64 { return v[f] }

// Clone returns a copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	copy(out, v)
	return out
}

// IsZero reports whether every field is zero.
func (v Values) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Sum returns the field-wise sum of the given value sets.
func (s *Schema) Sum(vs ...Values) Values {
	out := s.Zero()
	for _, v := range vs {
		out.Add(v)
	}
	return out
}
