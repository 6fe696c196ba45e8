package config

import (
	"os"
	"strings"
)

// EnvironmentExpander substitutes environment references in raw configuration.
type EnvironmentExpander interface {
	Expand(input []byte) []byte
}

// OsEnvironmentExpander expands ${VAR} and ${VAR:-default} from the process
// environment. A default applies when the variable is unset or empty.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

func (e *OsEnvironmentExpander) Expand(input []byte) []byte {
	return []byte(os.Expand(string(input), e.resolve))
}

func (e *OsEnvironmentExpander) resolve(ref string) string {
	name, def, hasDefault := strings.Cut(ref, ":-")
	if v, ok := e.lookup(name); ok && (v != "" || !hasDefault) {
		return v
	}
	return def
}
