// Package registry holds the set of monitored locations and their collection
// configuration. The pipeline reads locations from here and never mutates
// them except through SetActive.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// Geocoder resolves a place name to coordinates. It is only consulted for
// seed locations that come without coordinates.
type Geocoder interface {
	Resolve(name string) (lat, lon float64, err error)
}

// Registry is a concurrency-safe location registry implementing
// telemetry.LocationSource.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]telemetry.Location

	geocoder Geocoder

	// onChange hooks fire after a location's configuration changed, outside
	// the registry lock. Used to invalidate derived caches.
	onChange []func(locationID string)
}

// New creates an empty registry. geocoder may be nil, in which case locations
// must be added with explicit coordinates.
func New(geocoder Geocoder) *Registry {
	return &Registry{
		byID:     make(map[string]telemetry.Location),
		geocoder: geocoder,
	}
}

// OnChange registers a hook invoked with the location id after any
// configuration change.
func (r *Registry) OnChange(fn func(locationID string)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Add registers a location. A missing ID is assigned; missing coordinates are
// resolved through the geocoder. New locations start active unless stated
// otherwise by the caller.
func (r *Registry) Add(loc telemetry.Location) (telemetry.Location, error) {
	if loc.Name == "" {
		return telemetry.Location{}, fmt.Errorf("location name is required")
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.Lat == 0 && loc.Lon == 0 {
		if r.geocoder == nil {
			return telemetry.Location{}, fmt.Errorf("location %q has no coordinates and no geocoder is configured", loc.Name)
		}
		lat, lon, err := r.geocoder.Resolve(loc.Name)
		if err != nil {
			return telemetry.Location{}, fmt.Errorf("geocode %q: %w", loc.Name, err)
		}
		loc.Lat, loc.Lon = lat, lon
	}

	r.mu.Lock()
	r.byID[loc.ID] = loc
	r.mu.Unlock()
	return loc, nil
}

// Get returns the location with the given id.
func (r *Registry) Get(id string) (telemetry.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.byID[id]
	if !ok {
		return telemetry.Location{}, telemetry.ErrUnknownLocation
	}
	return loc, nil
}

// List returns locations ordered by name, optionally only active ones.
func (r *Registry) List(activeOnly bool) []telemetry.Location {
	r.mu.RLock()
	locs := make([]telemetry.Location, 0, len(r.byID))
	for _, loc := range r.byID {
		if activeOnly && !loc.Active {
			continue
		}
		locs = append(locs, loc)
	}
	r.mu.RUnlock()

	sort.Slice(locs, func(i, j int) bool { return locs[i].Name < locs[j].Name })
	return locs
}

// SetActive toggles collection for a location and fires the change hooks.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	loc, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return telemetry.ErrUnknownLocation
	}
	loc.Active = active
	r.byID[id] = loc
	hooks := append([]func(string){}, r.onChange...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	return nil
}
