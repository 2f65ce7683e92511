package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/cache"
)

// MaxForecastDays bounds forecast queries; it matches the validity window of
// a fetched forecast document.
const MaxForecastDays = 5

// ErrInvalidForecastDays is returned for a days argument outside [1, MaxForecastDays].
var ErrInvalidForecastDays = errors.New("forecast days must be between 1 and 5")

// ServiceConfig tunes the pipeline service.
type ServiceConfig struct {
	// FetchInterval is the realtime collection period; freshness is judged
	// against twice this value.
	FetchInterval time.Duration

	// FanOut bounds concurrent per-location work within one batch.
	FanOut int

	// CacheTTL bounds staleness of cached realtime and summary views.
	CacheTTL time.Duration

	// ForecastCacheTTL bounds staleness of cached forecast responses.
	ForecastCacheTTL time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.FetchInterval <= 0 {
		c.FetchInterval = time.Minute
	}
	if c.FanOut <= 0 {
		c.FanOut = 8
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.ForecastCacheTTL <= 0 {
		c.ForecastCacheTTL = 30 * time.Minute
	}
}

// Service orchestrates collection, forecast refresh, and the cached read
// operations the API layer consumes.
type Service struct {
	locs     LocationSource
	store    Store
	adapters []Adapter
	cache    *cache.Cache
	cfg      ServiceConfig

	now func() time.Time
}

func NewService(locs LocationSource, store Store, adapters []Adapter, c *cache.Cache, cfg ServiceConfig) *Service {
	cfg.applyDefaults()
	return &Service{
		locs:     locs,
		store:    store,
		adapters: adapters,
		cache:    c,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CollectLocation fetches from every enabled adapter concurrently and appends
// each successful reading to the raw store. Adapter failures are logged, with
// partial success preferred; an error is returned only when no adapter
// produced a reading.
func (s *Service) CollectLocation(ctx context.Context, loc Location) error {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		attempted int
	)

	for _, a := range s.adapters {
		if !loc.Config.SourceEnabled(a.Name()) {
			continue
		}
		attempted++
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := a.Fetch(ctx, loc)
			if err != nil {
				log.Printf("adapter %s fetch failed for %s: %v", a.Name(), loc.Name, err)
				return
			}
			if err := s.store.AppendRaw(ctx, r); err != nil {
				log.Printf("append reading from %s for %s failed: %v", a.Name(), loc.Name, err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if attempted == 0 {
		return fmt.Errorf("no adapters enabled for %s", loc.Name)
	}
	if succeeded == 0 {
		return fmt.Errorf("all %d adapters failed for %s", attempted, loc.Name)
	}
	return nil
}

// CollectAll runs one realtime collection tick over every active location,
// bounded by the fan-out limit. Per-location failures are logged and skipped;
// the tick only fails as a whole when every location failed or the context
// was cancelled.
func (s *Service) CollectAll(ctx context.Context) error {
	locs := s.locs.List(true)
	if len(locs) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FanOut)

	for _, loc := range locs {
		if SoftDeadlineExceeded(ctx) {
			log.Printf("collect: soft deadline exceeded; skipping remaining locations")
			break
		}
		loc := loc
		g.Go(func() error {
			if err := s.CollectLocation(gctx, loc); err != nil {
				log.Printf("collect failed for %s (%s): %v", loc.Name, loc.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed == len(locs) {
		return fmt.Errorf("collection failed for all %d locations", failed)
	}
	return nil
}

// RefreshForecast fetches forecast points from every forecast-capable adapter
// enabled for the location, merges them by timestamp, and fully replaces the
// location's forecast document.
func (s *Service) RefreshForecast(ctx context.Context, loc Location) error {
	merged := make(map[int64]*ForecastPoint)

	var fetched int
	for _, a := range s.adapters {
		fa, ok := a.(ForecastAdapter)
		if !ok || !loc.Config.SourceEnabled(a.Name()) {
			continue
		}
		points, err := fa.FetchForecast(ctx, loc, MaxForecastDays)
		if err != nil {
			log.Printf("adapter %s forecast failed for %s: %v", a.Name(), loc.Name, err)
			continue
		}
		fetched++
		for _, p := range points {
			key := p.Timestamp.UTC().Unix()
			mp, ok := merged[key]
			if !ok {
				mp = &ForecastPoint{Timestamp: p.Timestamp.UTC()}
				merged[key] = mp
			}
			mp.Weather = mergeMetrics(mp.Weather, p.Weather)
			mp.AirQuality = mergeMetrics(mp.AirQuality, p.AirQuality)
		}
	}

	if len(merged) == 0 {
		if fetched == 0 {
			return fmt.Errorf("no forecast source succeeded for %s", loc.Name)
		}
		return fmt.Errorf("forecast sources returned no points for %s", loc.Name)
	}

	keys := make([]int64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	points := make([]ForecastPoint, 0, len(keys))
	for _, k := range keys {
		points = append(points, *merged[k])
	}

	now := s.now().UTC()
	f := Forecast{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		Points:       points,
		GeneratedAt:  now,
		ValidUntil:   now.Add(ForecastValidity),
	}
	if err := s.store.UpsertForecast(ctx, f); err != nil {
		return fmt.Errorf("upsert forecast for %s: %w", loc.Name, err)
	}
	return nil
}

// RefreshAllForecasts runs the forecast flow for every active location with
// the same isolation semantics as CollectAll.
func (s *Service) RefreshAllForecasts(ctx context.Context) error {
	locs := s.locs.List(true)
	if len(locs) == 0 {
		return nil
	}

	var failed int
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if SoftDeadlineExceeded(ctx) {
			log.Printf("forecast: soft deadline exceeded; skipping remaining locations")
			return nil
		}
		if err := s.RefreshForecast(ctx, loc); err != nil {
			failed++
			log.Printf("forecast refresh failed for %s (%s): %v", loc.Name, loc.ID, err)
		}
	}
	if failed == len(locs) {
		return fmt.Errorf("forecast refresh failed for all %d locations", failed)
	}
	return nil
}

// RealtimeView is the answer to a realtime query: the latest data available
// for the location, how old it is, and whether it still counts as fresh.
// When no raw reading survives, the most recent hourly aggregate is served
// with IsFresh=false instead of an error.
type RealtimeView struct {
	LocationID    string             `json:"locationId"`
	LocationName  string             `json:"locationName"`
	Timestamp     time.Time          `json:"timestamp"`
	Metrics       map[string]float64 `json:"metrics"`
	Source        string             `json:"source"`
	FromAggregate bool               `json:"fromAggregate"`

	DataAgeSeconds int64 `json:"dataAgeSeconds"`
	IsFresh        bool  `json:"isFresh"`
}

// realtimeSnapshot is the cacheable part of a RealtimeView; age and freshness
// are recomputed on every read so a cache hit does not freeze them.
type realtimeSnapshot struct {
	LocationID    string             `json:"locationId"`
	LocationName  string             `json:"locationName"`
	Timestamp     time.Time          `json:"timestamp"`
	Metrics       map[string]float64 `json:"metrics"`
	Source        string             `json:"source"`
	FromAggregate bool               `json:"fromAggregate"`
}

// GetRealtime returns the cached realtime view for one location, reading
// through to the store on miss.
func (s *Service) GetRealtime(ctx context.Context, locationID string) (RealtimeView, error) {
	loc, err := s.locs.Get(locationID)
	if err != nil {
		return RealtimeView{}, err
	}

	data, err := s.cache.GetOrCompute(ctx, cache.RealtimeKey(loc.ID), s.cfg.CacheTTL, func(ctx context.Context) ([]byte, error) {
		snap, err := s.realtimeSnapshot(ctx, loc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	})
	if err != nil {
		return RealtimeView{}, err
	}

	var snap realtimeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return RealtimeView{}, fmt.Errorf("decode cached realtime view: %w", err)
	}
	return s.viewFromSnapshot(snap), nil
}

func (s *Service) realtimeSnapshot(ctx context.Context, loc Location) (realtimeSnapshot, error) {
	r, err := s.store.LatestRaw(ctx, loc.ID)
	if err == nil {
		return realtimeSnapshot{
			LocationID:   loc.ID,
			LocationName: loc.Name,
			Timestamp:    r.Timestamp,
			Metrics:      r.Metrics,
			Source:       r.Source,
		}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return realtimeSnapshot{}, err
	}

	// Raw tier is empty (or expired); degrade to the newest hourly aggregate.
	a, err := s.store.LatestAggregate(ctx, loc.ID, PeriodHour)
	if err != nil {
		return realtimeSnapshot{}, err
	}
	metrics := make(map[string]float64, len(a.Metrics))
	for name, m := range a.Metrics {
		metrics[name] = m.Avg
	}
	return realtimeSnapshot{
		LocationID:    loc.ID,
		LocationName:  loc.Name,
		Timestamp:     a.PeriodEnd,
		Metrics:       metrics,
		Source:        "hourly_aggregate",
		FromAggregate: true,
	}, nil
}

func (s *Service) viewFromSnapshot(snap realtimeSnapshot) RealtimeView {
	age := s.now().UTC().Sub(snap.Timestamp)
	if age < 0 {
		age = 0
	}
	return RealtimeView{
		LocationID:     snap.LocationID,
		LocationName:   snap.LocationName,
		Timestamp:      snap.Timestamp,
		Metrics:        snap.Metrics,
		Source:         snap.Source,
		FromAggregate:  snap.FromAggregate,
		DataAgeSeconds: int64(age.Seconds()),
		IsFresh:        !snap.FromAggregate && age <= 2*s.cfg.FetchInterval,
	}
}

// SummaryEntry is one location's line in the fleet summary.
type SummaryEntry struct {
	LocationID string             `json:"locationId"`
	Name       string             `json:"name"`
	Active     bool               `json:"active"`
	HasData    bool               `json:"hasData"`
	Timestamp  time.Time          `json:"timestamp,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	IsFresh    bool               `json:"isFresh"`
}

// Summary is the cached fleet-wide view.
type Summary struct {
	Locations      []SummaryEntry `json:"locations"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	TotalLocations int            `json:"totalLocations"`
}

// GetSummary returns the cached summary across locations.
func (s *Service) GetSummary(ctx context.Context, activeOnly bool) (Summary, error) {
	data, err := s.cache.GetOrCompute(ctx, cache.SummaryKey(activeOnly), s.cfg.CacheTTL, func(ctx context.Context) ([]byte, error) {
		return json.Marshal(s.buildSummary(ctx, activeOnly))
	})
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return Summary{}, fmt.Errorf("decode cached summary: %w", err)
	}
	return sum, nil
}

func (s *Service) buildSummary(ctx context.Context, activeOnly bool) Summary {
	locs := s.locs.List(activeOnly)
	now := s.now().UTC()

	entries := make([]SummaryEntry, 0, len(locs))
	for _, loc := range locs {
		entry := SummaryEntry{
			LocationID: loc.ID,
			Name:       loc.Name,
			Active:     loc.Active,
		}
		if snap, err := s.realtimeSnapshot(ctx, loc); err == nil {
			view := s.viewFromSnapshot(snap)
			entry.HasData = true
			entry.Timestamp = view.Timestamp
			entry.Metrics = view.Metrics
			entry.IsFresh = view.IsFresh
		}
		entries = append(entries, entry)
	}
	return Summary{
		Locations:      entries,
		GeneratedAt:    now,
		TotalLocations: len(entries),
	}
}

// GetForecast returns the cached forecast for a location, truncated to the
// requested number of days ahead.
func (s *Service) GetForecast(ctx context.Context, locationID string, days int) (Forecast, error) {
	if days < 1 || days > MaxForecastDays {
		return Forecast{}, ErrInvalidForecastDays
	}
	loc, err := s.locs.Get(locationID)
	if err != nil {
		return Forecast{}, err
	}

	data, err := s.cache.GetOrCompute(ctx, cache.ForecastKey(loc.ID), s.cfg.ForecastCacheTTL, func(ctx context.Context) ([]byte, error) {
		f, err := s.store.Forecast(ctx, loc.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(f)
	})
	if err != nil {
		return Forecast{}, err
	}

	var f Forecast
	if err := json.Unmarshal(data, &f); err != nil {
		return Forecast{}, fmt.Errorf("decode cached forecast: %w", err)
	}

	now := s.now().UTC()
	if now.After(f.ValidUntil) {
		return Forecast{}, ErrNotFound
	}

	horizon := now.Add(time.Duration(days) * 24 * time.Hour)
	points := make([]ForecastPoint, 0, len(f.Points))
	for _, p := range f.Points {
		if p.Timestamp.Before(now) || p.Timestamp.After(horizon) {
			continue
		}
		points = append(points, p)
	}
	f.Points = points
	return f, nil
}

// InvalidateLocation clears every cached view derived from one location. It
// is called when the location's configuration changes.
func (s *Service) InvalidateLocation(locationID string) {
	s.cache.InvalidateLocation(locationID)
}

func mergeMetrics(dst, src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]float64, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
