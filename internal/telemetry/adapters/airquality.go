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

// AirQualityAdapter fetches current and forecast air-quality metrics from the
// Open-Meteo air quality API.
type AirQualityAdapter struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewAirQualityAdapter(client *http.Client) *AirQualityAdapter {
	return &AirQualityAdapter{
		name:    "openmeteo_air",
		baseURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
		client:  client,
		circuit: newCircuitBreaker("openmeteo_air"),
	}
}

func (a *AirQualityAdapter) Name() string { return a.name }

func (a *AirQualityAdapter) Fetch(ctx context.Context, loc telemetry.Location) (telemetry.Reading, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("current", "pm10,pm2_5,ozone,nitrogen_dioxide,european_aqi")
		values.Set("timeformat", "unixtime")

		return http.NewRequest(http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, a.client, a.circuit, a.name, buildRequest)
	if err != nil {
		return telemetry.Reading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time        int64    `json:"time"`
			PM10        *float64 `json:"pm10"`
			PM25        *float64 `json:"pm2_5"`
			Ozone       *float64 `json:"ozone"`
			NO2         *float64 `json:"nitrogen_dioxide"`
			EuropeanAQI *float64 `json:"european_aqi"`
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
	putMetric(metrics, "pm10_ugm3", payload.Current.PM10)
	putMetric(metrics, "pm2_5_ugm3", payload.Current.PM25)
	putMetric(metrics, "ozone_ugm3", payload.Current.Ozone)
	putMetric(metrics, "no2_ugm3", payload.Current.NO2)
	putMetric(metrics, "european_aqi", payload.Current.EuropeanAQI)

	if len(metrics) == 0 {
		return telemetry.Reading{}, malformed(a.name, fmt.Errorf("no current air quality fields in response"))
	}

	return telemetry.Reading{
		LocationID: loc.ID,
		Timestamp:  ts,
		Metrics:    metrics,
		Source:     a.name,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// FetchForecast returns hourly air-quality forecast points.
func (a *AirQualityAdapter) FetchForecast(ctx context.Context, loc telemetry.Location, days int) ([]telemetry.ForecastPoint, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", loc.Lon))
		values.Set("hourly", "pm10,pm2_5,ozone")
		values.Set("forecast_days", fmt.Sprintf("%d", days))
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
			Time  []int64    `json:"time"`
			PM10  []*float64 `json:"pm10"`
			PM25  []*float64 `json:"pm2_5"`
			Ozone []*float64 `json:"ozone"`
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
		air := make(map[string]float64)
		putMetric(air, "pm10_ugm3", at(payload.Hourly.PM10, i))
		putMetric(air, "pm2_5_ugm3", at(payload.Hourly.PM25, i))
		putMetric(air, "ozone_ugm3", at(payload.Hourly.Ozone, i))
		if len(air) == 0 {
			continue
		}
		points = append(points, telemetry.ForecastPoint{
			Timestamp:  time.Unix(unix, 0).UTC(),
			AirQuality: air,
		})
	}
	return points, nil
}
