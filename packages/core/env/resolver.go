package env

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Resolver expands ${VAR} and ${VAR:-default} references
type Resolver struct {
	variables map[string]string
	lookupEnv func(string) (string, bool)
}

// NewResolver creates a resolver over the given variables. The process
// environment takes precedence over them.
func NewResolver(vars map[string]string) *Resolver {
	r := &Resolver{
		variables: make(map[string]string, len(vars)),
		lookupEnv: os.LookupEnv,
	}
	for k, v := range vars {
		r.variables[k] = v
	}
	return r
}

// Lookup returns the value of a variable
func (r *Resolver) Lookup(name string) (string, bool) {
	if v, ok := r.lookupEnv(name); ok {
		return v, true
	}
	v, ok := r.variables[name]
	return v, ok
}

// Expand replaces every reference in input. References without a value or
// default are left untouched and reported, sorted and deduplicated.
func (r *Resolver) Expand(input string) (string, []string) {
	missing := map[string]bool{}

	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		name := groups[1]
		if v, ok := r.Lookup(name); ok && v != "" {
			return v
		}
		if groups[2] != "" {
			return groups[3]
		}
		missing[name] = true
		return match
	})

	if len(missing) == 0 {
		return out, nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names
}

// HasReferences reports whether input contains any ${VAR} reference
func HasReferences(input string) bool {
	return strings.Contains(input, "${") && variablePattern.MatchString(input)
}
