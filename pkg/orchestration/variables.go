package orchestration

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
)

// MainKey is the distinguished variable that carries unnamed input and the
// output of every function.
const MainKey = "input"

// Variables is an ordered, case-insensitive mapping of variable names to
// string values. It always holds MainKey.
type Variables struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewVariables returns a set whose input is content.
func NewVariables(content string) *Variables {
	v := &Variables{m: orderedmap.New[string, string]()}
	v.m.Set(MainKey, content)
	return v
}

// NewVariablesFrom returns a set seeded from values. Keys are lower-cased;
// input defaults to "" when absent.
func NewVariablesFrom(values map[string]string) *Variables {
	v := NewVariables(values[MainKey])
	for k, val := range values {
		if k == "" {
			continue
		}
		v.m.Set(strings.ToLower(k), val)
	}
	return v
}

// Input returns the distinguished input value.
func (v *Variables) Input() string {
	s, _ := v.m.Get(MainKey)
	return s
}

// Update replaces the input value.
func (v *Variables) Update(content string) *Variables {
	v.m.Set(MainKey, content)
	return v
}

// Set stores value under name.
func (v *Variables) Set(name, value string) error {
	if name == "" {
		return kerrors.New(kerrors.CodeInvalidInput, "variable name cannot be empty", nil)
	}
	v.m.Set(strings.ToLower(name), value)
	return nil
}

// Delete removes name. Deleting input resets it to "".
func (v *Variables) Delete(name string) {
	key := strings.ToLower(name)
	if key == MainKey {
		v.m.Set(MainKey, "")
		return
	}
	v.m.Delete(key)
}

// Get returns the value stored under name.
func (v *Variables) Get(name string) (string, bool) {
	return v.m.Get(strings.ToLower(name))
}

// GetOr returns the value stored under name, or def when absent.
func (v *Variables) GetOr(name, def string) string {
	if s, ok := v.Get(name); ok {
		return s
	}
	return def
}

// Has reports whether name is set.
func (v *Variables) Has(name string) bool {
	_, ok := v.Get(name)
	return ok
}

// Len returns the number of variables, input included.
func (v *Variables) Len() int { return v.m.Len() }

// Keys returns the variable names in insertion order.
func (v *Variables) Keys() []string {
	keys := make([]string, 0, v.m.Len())
	for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns a copy of the variables as a plain map.
func (v *Variables) Map() map[string]string {
	out := make(map[string]string, v.m.Len())
	for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// Merge copies other into v. With overwrite false only absent keys are
// added; with overwrite true the values in other win.
func (v *Variables) Merge(other *Variables, overwrite bool) *Variables {
	if other == nil {
		return v
	}
	for pair := other.m.Oldest(); pair != nil; pair = pair.Next() {
		if !overwrite {
			if _, exists := v.m.Get(pair.Key); exists {
				continue
			}
		}
		v.m.Set(pair.Key, pair.Value)
	}
	return v
}

// Clone returns an independent copy.
func (v *Variables) Clone() *Variables {
	out := &Variables{m: orderedmap.New[string, string]()}
	for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
		out.m.Set(pair.Key, pair.Value)
	}
	return out
}

// String returns the input value.
func (v *Variables) String() string { return v.Input() }
