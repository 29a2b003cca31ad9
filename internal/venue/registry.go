// Package venue provides trading venue adapters and the registry the engine
// resolves them from.
package venue

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Registry is the static name-to-venue table built once at startup.
type Registry struct {
	venues map[string]domain.Venue
	names  []string
}

// NewRegistry registers the given venues. Names must be unique and non-empty.
func NewRegistry(venues ...domain.Venue) (*Registry, error) {
	r := &Registry{venues: make(map[string]domain.Venue, len(venues))}
	for _, v := range venues {
		name := v.Name()
		if name == "" {
			return nil, fmt.Errorf("venue: empty venue name")
		}
		if _, dup := r.venues[name]; dup {
			return nil, fmt.Errorf("venue: duplicate venue %q", name)
		}
		r.venues[name] = v
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the venue registered under name.
func (r *Registry) Get(name string) (domain.Venue, error) {
	v, ok := r.venues[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q: %w", name, domain.ErrUnknownVenue)
	}
	return v, nil
}

// Names returns the registered venue names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every venue in name order.
func (r *Registry) All() []domain.Venue {
	out := make([]domain.Venue, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.venues[n])
	}
	return out
}

var _ domain.VenueLookup = (*Registry)(nil)
