package warehouse

import (
	"fmt"
	"regexp"
	"slices"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Schema is a validated schema namespace. The only way to obtain one is
// ParseSchema, so any Schema may be interpolated into SQL.
type Schema struct {
	name string
}

// ParseSchema accepts name only when it is a plain lower-case identifier and
// appears in allowed.
func ParseSchema(name string, allowed []string) (Schema, error) {
	if !identifierPattern.MatchString(name) {
		return Schema{}, fmt.Errorf("schema %q is not a valid identifier", name)
	}
	if !slices.Contains(allowed, name) {
		return Schema{}, fmt.Errorf("schema %q is not in the allowed list %v", name, allowed)
	}
	return Schema{name: name}, nil
}

// MustParseSchema is ParseSchema for fixed names; it panics on error.
func MustParseSchema(name string, allowed ...string) Schema {
	s, err := ParseSchema(name, allowed)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Schema) Name() string { return s.name }

func (s Schema) String() string { return s.name }

// IsZero reports whether s was never parsed.
func (s Schema) IsZero() bool { return s.name == "" }
