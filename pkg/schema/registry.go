package schema

import "fmt"

// registry holds process-wide schemas registered at init time. It is never
// written after package initialization, so lookups need no locking.
var registry = map[string]*Schema{}

// MustRegister validates s and adds it to the process-wide registry. It
// panics on an invalid plan or a duplicate name; both are programming errors
// surfaced at startup.
func MustRegister(s *Schema) *Schema {
	if err := s.Validate(); err != nil {
		panic(err)
	}
	if _, dup := registry[s.Name]; dup {
		panic(fmt.Sprintf("schema %q registered twice", s.Name))
	}
	registry[s.Name] = s
	return s
}

// Lookup returns a registered schema by name.
func Lookup(name string) (*Schema, bool) {
	s, ok := registry[name]
	return s, ok
}
