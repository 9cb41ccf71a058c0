// Package registry maps site routes to page content.
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/elec-mate/coursepages/internal/content"
)

var (
	// ErrPageNotFound is returned when no page is registered for a route.
	ErrPageNotFound = errors.New("page not found")
	// ErrDuplicateRoute is returned when two pages claim the same route.
	ErrDuplicateRoute = errors.New("duplicate route")
)

// Registry is a one-to-one route to page mapping. Pages are stored by value
// and treated as read-only after registration.
type Registry struct {
	pages   map[string]*content.Page
	modules map[string]content.Module
	mu      sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		pages:   make(map[string]*content.Page),
		modules: make(map[string]content.Module),
	}
}

// Register adds p under its route.
func (r *Registry) Register(p content.Page) error {
	route := Clean(p.Route)
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pages[route]; ok {
		return fmt.Errorf("%w: %s (defined in %s and %s)", ErrDuplicateRoute, route, prev.Source, p.Source)
	}
	p.Route = route
	r.pages[route] = &p
	return nil
}

// RegisterModule adds a navigation module.
func (r *Registry) RegisterModule(m content.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ID] = m
}

// Lookup returns the page registered at route.
func (r *Registry) Lookup(route string) (*content.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[Clean(route)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, route)
	}
	return p, nil
}

// Has reports whether route is registered.
func (r *Registry) Has(route string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pages[Clean(route)]
	return ok
}

// Module returns a navigation module by id.
func (r *Registry) Module(id string) (content.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Modules returns all modules ordered by id.
func (r *Registry) Modules() []content.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]content.Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Routes returns every registered route in lexical order.
func (r *Registry) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pages))
	for route := range r.pages {
		out = append(out, route)
	}
	sort.Strings(out)
	return out
}

// Pages returns every registered page ordered by route.
func (r *Registry) Pages() []*content.Page {
	routes := r.Routes()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*content.Page, 0, len(routes))
	for _, route := range routes {
		out = append(out, r.pages[route])
	}
	return out
}

// Len returns the number of registered pages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// FromLoader builds a registry from loaded content. Duplicate routes are
// returned as errors alongside the registry holding the first definition.
func FromLoader(l interface {
	Pages() []content.Page
	Modules() []content.Module
}) (*Registry, []error) {
	r := New()
	var errs []error
	for _, p := range l.Pages() {
		if err := r.Register(p); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range l.Modules() {
		r.RegisterModule(m)
	}
	return r, errs
}

// Clean normalises a route: leading slash, no trailing slash, no dot segments.
func Clean(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return path.Clean(route)
}

// Target is the outcome of resolving an href from a page.
type Target struct {
	// Route is the cleaned site route, empty for external links and pure anchors.
	Route    string
	Fragment string
	External bool
}

// Resolve interprets href relative to the route of the page it appears on.
// Absolute paths are cleaned, relative paths are joined onto from, "#id" stays
// on the current page and anything with a scheme or host is external.
func Resolve(from, href string) Target {
	u, err := url.Parse(href)
	if err != nil {
		return Target{External: true}
	}
	if u.Scheme != "" || u.Host != "" {
		return Target{External: true}
	}
	t := Target{Fragment: u.Fragment}
	switch {
	case u.Path == "":
		t.Route = Clean(from)
	case strings.HasPrefix(u.Path, "/"):
		t.Route = Clean(u.Path)
	default:
		t.Route = Clean(path.Join(Clean(from), u.Path))
	}
	return t
}

// Href resolves href from a page and returns the absolute link to render.
// External hrefs are returned unchanged.
func Href(from, href string) string {
	t := Resolve(from, href)
	if t.External {
		return href
	}
	if t.Fragment != "" {
		return t.Route + "#" + t.Fragment
	}
	return t.Route
}
