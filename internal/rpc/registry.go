// Package rpc resolves versioned method calls and runs them through
// authentication and argument validation.
package rpc

import (
	"context"
	"fmt"

	"mrsh/internal/apierr"
)

// Param validates and converts a single named argument.
type Param interface {
	Name() string
	Validate(ctx context.Context, call *Call, raw any) (any, error)
}

type HandlerFunc func(ctx context.Context, call *Call, args Values) (any, error)

// Method is one entry of a version's method table.
type Method struct {
	Name string
	// Auth methods need a valid session token before arguments are checked.
	Auth bool
	// Deprecated methods fail with deprecated_version as soon as they are
	// resolved, shadowing any older declaration.
	Deprecated bool
	Params     []Param
	Optional   []Param
	Handle     HandlerFunc
}

// DeprecatedMethod declares name as retired in a version.
func DeprecatedMethod(name string) *Method {
	return &Method{Name: name, Deprecated: true}
}

// Version is the set of methods declared (or redeclared) by one release.
type Version struct {
	Name    string
	Methods []*Method
}

// Registry is an immutable (version, method) table. Lookups scan from the
// requested version back to the oldest one, so a method declared once stays
// available in every later version until it is redeclared.
type Registry struct {
	versions []string
	index    map[string]int
	tables   []map[string]*Method
}

// NewRegistry builds a registry from versions given oldest first.
func NewRegistry(versions ...Version) (*Registry, error) {
	r := &Registry{
		index: make(map[string]int, len(versions)),
	}

	for i, v := range versions {
		if _, dup := r.index[v.Name]; dup {
			return nil, fmt.Errorf("version %s declared twice", v.Name)
		}
		table := make(map[string]*Method, len(v.Methods))
		for _, m := range v.Methods {
			if _, dup := table[m.Name]; dup {
				return nil, fmt.Errorf("method %s declared twice in version %s", m.Name, v.Name)
			}
			if !m.Deprecated && m.Handle == nil {
				return nil, fmt.Errorf("method %s in version %s has no handler", m.Name, v.Name)
			}
			table[m.Name] = m
		}
		r.index[v.Name] = i
		r.versions = append(r.versions, v.Name)
		r.tables = append(r.tables, table)
	}

	if len(r.versions) == 0 {
		return nil, fmt.Errorf("registry needs at least one version")
	}
	return r, nil
}

// Resolve returns the newest declaration of name visible from version.
func (r *Registry) Resolve(version, name string) (*Method, error) {
	start, ok := r.index[version]
	if !ok {
		return nil, apierr.ErrInvalidVersion
	}

	for i := start; i >= 0; i-- {
		if m, ok := r.tables[i][name]; ok {
			return m, nil
		}
	}
	return nil, apierr.ErrInvalidMethod
}

// Versions returns the known versions, oldest first.
func (r *Registry) Versions() []string {
	out := make([]string, len(r.versions))
	copy(out, r.versions)
	return out
}

func (r *Registry) Latest() string {
	return r.versions[len(r.versions)-1]
}

// Methods lists every method name visible from version.
func (r *Registry) Methods(version string) []string {
	start, ok := r.index[version]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for i := start; i >= 0; i-- {
		for name, m := range r.tables[i] {
			if seen[name] {
				continue
			}
			seen[name] = true
			if !m.Deprecated {
				names = append(names, name)
			}
		}
	}
	return names
}
