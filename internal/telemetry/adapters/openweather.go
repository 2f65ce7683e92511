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

// OpenWeatherAdapter fetches current weather from OpenWeatherMap. It requires
// an API key and is typically configured as a second opinion alongside
// Open-Meteo.
type OpenWeatherAdapter struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherAdapter(client *http.Client, apiKey string) *OpenWeatherAdapter {
	return &OpenWeatherAdapter{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		client:  client,
		circuit: newCircuitBreaker("openweather"),
	}
}

func (a *OpenWeatherAdapter) Name() string { return a.name }

func (a *OpenWeatherAdapter) Fetch(ctx context.Context, loc telemetry.Location) (telemetry.Reading, error) {
	if a.apiKey == "" {
		return telemetry.Reading{}, telemetry.NewFetchError(telemetry.FetchMalformedResponse, a.name,
			fmt.Errorf("openweather api key is not configured"))
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", a.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", loc.Lat))
		values.Set("lon", fmt.Sprintf("%f", loc.Lon))

		return http.NewRequest(http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, a.client, a.circuit, a.name, buildRequest)
	if err != nil {
		return telemetry.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     *float64 `json:"temp"`
			Humidity *float64 `json:"humidity"`
			Pressure *float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed *float64 `json:"speed"`
		} `json:"wind"`
		Rain struct {
			OneH   *float64 `json:"1h"`
			ThreeH *float64 `json:"3h"`
		} `json:"rain"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return telemetry.Reading{}, malformed(a.name, err)
	}

	ts := time.Unix(payload.Dt, 0).UTC()
	if payload.Dt == 0 {
		ts = time.Now().UTC()
	}

	metrics := make(map[string]float64)
	putMetric(metrics, "temperature_c", payload.Main.Temp)
	putMetric(metrics, "humidity_pct", payload.Main.Humidity)
	putMetric(metrics, "pressure_hpa", payload.Main.Pressure)
	putMetric(metrics, "wind_speed_ms", payload.Wind.Speed)

	precip := payload.Rain.OneH
	if precip == nil {
		precip = payload.Rain.ThreeH
	}
	putMetric(metrics, "precipitation_mm", precip)

	if len(metrics) == 0 {
		return telemetry.Reading{}, malformed(a.name, fmt.Errorf("no weather fields in response"))
	}

	return telemetry.Reading{
		LocationID: loc.ID,
		Timestamp:  ts,
		Metrics:    metrics,
		Source:     a.name,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
