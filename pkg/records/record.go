// Package records defines the row representation shared by the parser,
// the merger and the serializer.
package records

// Record is an ordered mapping from column name to string value.
//
// Iteration order is key insertion order. Setting an existing key replaces the
// value in place and keeps the key's position; setting a new key appends it.
// Columns a row does not carry are simply absent.
//
// The zero value is an empty record ready to use. Copying a Record shares its
// storage; use Clone for an independent copy.
type Record struct {
	keys []string
	vals map[string]string
}

// New returns an empty record with room for n columns.
func New(n int) Record {
	return Record{
		keys: make([]string, 0, n),
		vals: make(map[string]string, n),
	}
}

// FromPairs builds a record from alternating key, value arguments.
// A trailing key without a value is ignored.
func FromPairs(kv ...string) Record {
	r := New(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set stores v under k.
func (r *Record) Set(k, v string) {
	if r.vals == nil {
		r.vals = make(map[string]string)
	}
	if _, ok := r.vals[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.vals[k] = v
}

// Get returns the value stored under k and whether it is present.
func (r Record) Get(k string) (string, bool) {
	v, ok := r.vals[k]
	return v, ok
}

// Has reports whether k is present.
func (r Record) Has(k string) bool {
	_, ok := r.vals[k]
	return ok
}

// Keys returns the column names in insertion order.
// The returned slice must not be modified.
func (r Record) Keys() []string { return r.keys }

// Len returns the number of columns present.
func (r Record) Len() int { return len(r.keys) }

// Clone returns an independent copy of r.
func (r Record) Clone() Record {
	out := New(len(r.keys))
	for _, k := range r.keys {
		out.Set(k, r.vals[k])
	}
	return out
}
