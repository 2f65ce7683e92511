package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

type stubGeocoder struct {
	lat, lon float64
	err      error
	calls    int
}

func (g *stubGeocoder) Resolve(name string) (float64, float64, error) {
	g.calls++
	return g.lat, g.lon, g.err
}

func TestAddAssignsID(t *testing.T) {
	r := New(nil)

	loc, err := r.Add(telemetry.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14})
	require.NoError(t, err)
	require.NotEmpty(t, loc.ID)

	got, err := r.Get(loc.ID)
	require.NoError(t, err)
	require.Equal(t, "Lisbon", got.Name)
}

func TestAddKeepsExplicitID(t *testing.T) {
	r := New(nil)

	loc, err := r.Add(telemetry.Location{ID: "lis-1", Name: "Lisbon", Lat: 38.72, Lon: -9.14})
	require.NoError(t, err)
	require.Equal(t, "lis-1", loc.ID)
}

func TestAddRequiresName(t *testing.T) {
	r := New(nil)

	_, err := r.Add(telemetry.Location{Lat: 38.72, Lon: -9.14})
	require.Error(t, err)
}

func TestAddGeocodesMissingCoordinates(t *testing.T) {
	geo := &stubGeocoder{lat: 41.15, lon: -8.61}
	r := New(geo)

	loc, err := r.Add(telemetry.Location{Name: "Porto"})
	require.NoError(t, err)
	require.Equal(t, 41.15, loc.Lat)
	require.Equal(t, -8.61, loc.Lon)
	require.Equal(t, 1, geo.calls)

	// Explicit coordinates skip the geocoder.
	_, err = r.Add(telemetry.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14})
	require.NoError(t, err)
	require.Equal(t, 1, geo.calls)
}

func TestAddGeocoderFailure(t *testing.T) {
	geo := &stubGeocoder{err: errors.New("quota exceeded")}
	r := New(geo)

	_, err := r.Add(telemetry.Location{Name: "Porto"})
	require.ErrorContains(t, err, "quota exceeded")
}

func TestAddWithoutGeocoderOrCoordinates(t *testing.T) {
	r := New(nil)

	_, err := r.Add(telemetry.Location{Name: "Porto"})
	require.Error(t, err)
}

func TestGetUnknown(t *testing.T) {
	r := New(nil)

	_, err := r.Get("missing")
	require.ErrorIs(t, err, telemetry.ErrUnknownLocation)
}

func TestListSortedAndFiltered(t *testing.T) {
	r := New(nil)

	_, err := r.Add(telemetry.Location{Name: "Porto", Lat: 41.15, Lon: -8.61, Active: true})
	require.NoError(t, err)
	_, err = r.Add(telemetry.Location{Name: "Braga", Lat: 41.55, Lon: -8.43, Active: false})
	require.NoError(t, err)
	_, err = r.Add(telemetry.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14, Active: true})
	require.NoError(t, err)

	all := r.List(false)
	require.Len(t, all, 3)
	require.Equal(t, "Braga", all[0].Name)
	require.Equal(t, "Lisbon", all[1].Name)
	require.Equal(t, "Porto", all[2].Name)

	active := r.List(true)
	require.Len(t, active, 2)
	require.Equal(t, "Lisbon", active[0].Name)
	require.Equal(t, "Porto", active[1].Name)
}

func TestSetActiveFiresOnChange(t *testing.T) {
	r := New(nil)

	loc, err := r.Add(telemetry.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14, Active: true})
	require.NoError(t, err)

	var changed []string
	r.OnChange(func(id string) { changed = append(changed, id) })

	require.NoError(t, r.SetActive(loc.ID, false))
	require.Equal(t, []string{loc.ID}, changed)

	got, err := r.Get(loc.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	require.ErrorIs(t, r.SetActive("missing", true), telemetry.ErrUnknownLocation)
	require.Len(t, changed, 1)
}
