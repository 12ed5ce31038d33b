package clinicalcalc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// ValueSet is an ordered mapping of clinical field names to values. Keys keep
// their first insertion position; overwriting a key does not move it.
type ValueSet struct {
	keys []string
	vals map[string]Value
}

// NewValueSet returns an empty set.
func NewValueSet() *ValueSet {
	return &ValueSet{vals: make(map[string]Value)}
}

// ValueSetFromMap builds a set from decoded JSON scalars. Keys are sorted so
// the result is deterministic.
func ValueSetFromMap(m map[string]interface{}) (*ValueSet, error) {
	vs := NewValueSet()
	for _, k := range sortedKeys(m) {
		v, err := FromInterface(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		vs.Set(k, v)
	}
	return vs, nil
}

func (s *ValueSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the field names in insertion order.
func (s *ValueSet) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *ValueSet) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.vals[key]
	return v, ok
}

// Has reports whether key holds a present value.
func (s *ValueSet) Has(key string) bool {
	v, ok := s.Get(key)
	return ok && v.Present()
}

func (s *ValueSet) Set(key string, v Value) {
	if s.vals == nil {
		s.vals = make(map[string]Value)
	}
	if _, ok := s.vals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = v
}

func (s *ValueSet) SetNumber(key string, f float64) { s.Set(key, Number(f)) }
func (s *ValueSet) SetString(key string, str string) { s.Set(key, String(str)) }

func (s *ValueSet) Delete(key string) {
	if _, ok := s.vals[key]; !ok {
		return
	}
	delete(s.vals, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy. Values are immutable so copying the map is enough.
func (s *ValueSet) Clone() *ValueSet {
	out := NewValueSet()
	if s == nil {
		return out
	}
	out.keys = append(out.keys, s.keys...)
	for k, v := range s.vals {
		out.vals[k] = v
	}
	return out
}

// Merge returns a new set holding s overlaid with other. Keys from other win.
func (s *ValueSet) Merge(other *ValueSet) *ValueSet {
	out := s.Clone()
	if other == nil {
		return out
	}
	for _, k := range other.keys {
		out.Set(k, other.vals[k])
	}
	return out
}

// Equal reports whether both sets hold the same keys in the same order with
// the same values.
func (s *ValueSet) Equal(other *ValueSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, k := range s.Keys() {
		if other.keys[i] != k || s.vals[k] != other.vals[k] {
			return false
		}
	}
	return true
}

// Map converts the set into plain Go values.
func (s *ValueSet) Map() map[string]interface{} {
	out := make(map[string]interface{}, s.Len())
	if s == nil {
		return out
	}
	for _, k := range s.keys {
		out[k] = s.vals[k].Interface()
	}
	return out
}

func (s *ValueSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := s.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping document key order.
// Nested objects and arrays are rejected.
func (s *ValueSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = ValueSet{vals: make(map[string]Value)}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("clinical values must be a JSON object")
	}

	out := ValueSet{vals: make(map[string]Value)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid object key %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		v, err := valueFromToken(valTok)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return err
	}
	*s = out
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
