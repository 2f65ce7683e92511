package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// OpenMeteoAdapter fetches current weather and hourly forecasts from
// Open-Meteo. No API key is required.
type OpenMeteoAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoAdapter(client *http.Client) *OpenMeteoAdapter {
	return &OpenMeteoAdapter{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		client:  client,
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (a *OpenMeteoAdapter) Name() string { return a.name }

func (a *OpenMeteoAdapter) Fetch(ctx context.Context, loc telemetry.Location) (telemetry.Reading, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("current", "temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,precipitation")
		values.Set("wind_speed_unit", "ms")
		values.Set("timeformat", "unixtime")

		return http.NewRequest(http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, a.client, a.circuit, a.name, buildRequest)
	if err != nil {
		return telemetry.Reading{}, err
	}
	defer resp.Body.Close()

	// Pointer fields keep absent upstream values absent instead of zero.
	var payload struct {
		Current struct {
			Time          int64    `json:"time"`
			Temperature   *float64 `json:"temperature_2m"`
			Humidity      *float64 `json:"relative_humidity_2m"`
			Pressure      *float64 `json:"surface_pressure"`
			WindSpeed     *float64 `json:"wind_speed_10m"`
			Precipitation *float64 `json:"precipitation"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return telemetry.Reading{}, malformed(a.name, err)
	}

	ts := time.Unix(payload.Current.Time, 0).UTC()
	if payload.Current.Time == 0 {
		ts = time.Now().UTC()
	}

	metrics := make(map[string]float64)
	putMetric(metrics, "temperature_c", payload.Current.Temperature)
	putMetric(metrics, "humidity_pct", payload.Current.Humidity)
	putMetric(metrics, "pressure_hpa", payload.Current.Pressure)
	putMetric(metrics, "wind_speed_ms", payload.Current.WindSpeed)
	putMetric(metrics, "precipitation_mm", payload.Current.Precipitation)

	if len(metrics) == 0 {
		return telemetry.Reading{}, malformed(a.name, fmt.Errorf("no current weather fields in response"))
	}

	return telemetry.Reading{
		LocationID: loc.ID,
		Timestamp:  ts,
		Metrics:    metrics,
		Source:     a.name,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// FetchForecast returns hourly forecast points for up to days ahead.
func (a *OpenMeteoAdapter) FetchForecast(ctx context.Context, loc telemetry.Location, days int) ([]telemetry.ForecastPoint, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")
		values.Set("forecast_days", fmt.Sprintf("%d", days))
		values.Set("wind_speed_unit", "ms")
		values.Set("timeformat", "unixtime")

		return http.NewRequest(http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, a.client, a.circuit, a.name, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time          []int64    `json:"time"`
			Temperature   []*float64 `json:"temperature_2m"`
			Humidity      []*float64 `json:"relative_humidity_2m"`
			WindSpeed     []*float64 `json:"wind_speed_10m"`
			Precipitation []*float64 `json:"precipitation"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, malformed(a.name, err)
	}
	if len(payload.Hourly.Time) == 0 {
		return nil, malformed(a.name, fmt.Errorf("no hourly series in response"))
	}

	points := make([]telemetry.ForecastPoint, 0, len(payload.Hourly.Time))
	for i, unix := range payload.Hourly.Time {
		weather := make(map[string]float64)
		putMetric(weather, "temperature_c", at(payload.Hourly.Temperature, i))
		putMetric(weather, "humidity_pct", at(payload.Hourly.Humidity, i))
		putMetric(weather, "wind_speed_ms", at(payload.Hourly.WindSpeed, i))
		putMetric(weather, "precipitation_mm", at(payload.Hourly.Precipitation, i))
		if len(weather) == 0 {
			continue
		}
		points = append(points, telemetry.ForecastPoint{
			Timestamp: time.Unix(unix, 0).UTC(),
			Weather:   weather,
		})
	}
	return points, nil
}

// putMetric stores v under name only when the upstream reported it.
func putMetric(metrics map[string]float64, name string, v *float64) {
	if v != nil {
		metrics[name] = *v
	}
}

// at safely indexes a series that may be shorter than the time axis.
func at(series []*float64, i int) *float64 {
	if i < len(series) {
		return series[i]
	}
	return nil
}
