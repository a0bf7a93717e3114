package gismeteo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gismeteo-go/gismeteo/internal/cache"
	"github.com/gismeteo-go/gismeteo/internal/gismeteo"
	"github.com/gismeteo-go/gismeteo/internal/provider/resilience"
)

// zone matches the tzone="180" offset of the forecast fixture.
var zone = time.FixedZone("", 3*60*60)

type testCounters struct {
	forecast int64
	cities   int64
	nowcast  int64
}

// newTestServer serves the fixture feed, city lookup and 10-day page,
// counting requests per endpoint.
func newTestServer(t *testing.T, counters *testCounters) *httptest.Server {
	t.Helper()

	forecastXML, err := os.ReadFile(filepath.Join("testdata", "forecast.xml"))
	require.NoError(t, err)
	nowcastHTML, err := os.ReadFile(filepath.Join("testdata", "forecast_parsed.html"))
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/forecast/"):
			atomic.AddInt64(&counters.forecast, 1)
			assert.Equal(t, "4079", r.URL.Query().Get("city"))
			assert.Equal(t, "en", r.URL.Query().Get("lang"))
			_, _ = w.Write(forecastXML)
		case strings.HasPrefix(r.URL.Path, "/cities/"):
			atomic.AddInt64(&counters.cities, 1)
			assert.Equal(t, "1", r.URL.Query().Get("count"))
			_, _ = w.Write([]byte(`<document><item id="4079" lat="59.94" lng="30.31"/></document>`))
		case strings.HasPrefix(r.URL.Path, "/weather-"):
			atomic.AddInt64(&counters.nowcast, 1)
			assert.Equal(t, "/weather-sankt-peterburg-4079/10-days/", r.URL.Path)
			assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
			_, _ = w.Write(nowcastHTML)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestClient(t *testing.T, server *httptest.Server, cfg gismeteo.ClientConfig) *gismeteo.Client {
	t.Helper()

	cfg.EndpointURL = server.URL
	cfg.NowcastURLFormat = server.URL + "/weather-%s/10-days/"
	if cfg.LocationID == 0 && cfg.Latitude == 0 && cfg.Longitude == 0 {
		cfg.LocationID = 4079
	}
	if cfg.Now == nil {
		// Mid-afternoon of the fixture's current day.
		now := time.Date(2021, 2, 21, 16, 30, 0, 0, zone)
		cfg.Now = func() time.Time { return now }
	}

	client, err := gismeteo.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude too high", 91, 30},
		{"latitude too low", -91, 30},
		{"longitude too high", 59, 181},
		{"longitude too low", 59, -181},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gismeteo.NewClient(gismeteo.ClientConfig{
				Latitude:  tt.lat,
				Longitude: tt.lon,
			})
			assert.ErrorIs(t, err, gismeteo.ErrInvalidCoordinates)
		})
	}
}

func TestClient_Update_CurrentConditions(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})
	require.NoError(t, client.Update(context.Background()))

	require.NotNil(t, client.Current())

	assert.Equal(t, -7.0, *client.Temperature(nil))
	assert.Equal(t, 746, *client.Pressure(nil))
	assert.Equal(t, 994.6, *client.PressureHPa(nil))
	assert.Equal(t, 86, *client.Humidity(nil))
	assert.Equal(t, 3.0, *client.WindSpeed(nil))
	assert.Equal(t, 10.8, *client.WindSpeedKMH(nil))
	assert.Equal(t, 180, *client.WindBearing(nil))
	assert.Equal(t, "s", *client.WindBearingLabel(nil))
	assert.Equal(t, 100, *client.CloudCoveragePercent(nil))
	assert.Equal(t, "snow", *client.PrecipitationType(nil))
	assert.Equal(t, "small", *client.PrecipitationIntensity(nil))
	assert.Equal(t, 0.3, *client.PrecipitationAmount(nil))
	assert.False(t, *client.IsStorm(nil))
	assert.Equal(t, 3, *client.GeomagneticField(nil))
	assert.Equal(t, 3.0, *client.WaterTemperature(nil))
	assert.Equal(t, -12.3, *client.ApparentTemperature(nil))
	assert.Equal(t, gismeteo.ConditionSnowy, client.Condition(nil, gismeteo.ModeHourly))

	require.NotNil(t, client.Sunrise())
	require.NotNil(t, client.Sunset())
	assert.Equal(t, int64(1613893140), client.Sunrise().Unix())
	assert.Equal(t, int64(1613929620), client.Sunset().Unix())
}

func TestClient_Update_HourlyForecast(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})
	require.NoError(t, client.Update(context.Background()))

	// At 16:30 the 15:00 record is the most recent past record and stays
	// at position zero; everything earlier would have been dropped.
	r0 := client.ForecastRecord(0, gismeteo.ModeHourly)
	require.NotNil(t, r0)
	assert.Equal(t, time.Date(2021, 2, 21, 15, 0, 0, 0, zone).Unix(), r0.Time.Unix())
	assert.Equal(t, 2.2, *client.PrecipitationAmount(r0))
	assert.Equal(t, "heavy", *client.PrecipitationIntensity(r0))
	assert.True(t, *r0.IsDaytime)
	assert.Equal(t, gismeteo.ConditionSnowy, client.Condition(r0, gismeteo.ModeHourly))

	// Record with p="0": pressure degrades to unknown, and the empty
	// measured amount falls back to the per-intensity nominal amount.
	r2 := client.ForecastRecord(2, gismeteo.ModeHourly)
	require.NotNil(t, r2)
	assert.Nil(t, client.Pressure(r2))
	assert.Equal(t, 0.0, *client.PrecipitationAmount(r2))

	// Strong breeze before sunrise over a partly cloudy sky.
	r3 := client.ForecastRecord(3, gismeteo.ModeHourly)
	require.NotNil(t, r3)
	assert.False(t, *r3.IsDaytime)
	assert.Equal(t, gismeteo.ConditionWindy, client.Condition(r3, gismeteo.ModeHourly))

	// Thunderstorm with rain.
	r4 := client.ForecastRecord(4, gismeteo.ModeHourly)
	require.NotNil(t, r4)
	assert.True(t, *client.IsStorm(r4))
	assert.Equal(t, gismeteo.ConditionLightningRainy, client.Condition(r4, gismeteo.ModeHourly))

	// Clear daytime sky; wind sector zero means no bearing data.
	r5 := client.ForecastRecord(5, gismeteo.ModeHourly)
	require.NotNil(t, r5)
	assert.Equal(t, gismeteo.ConditionSunny, client.Condition(r5, gismeteo.ModeHourly))
	assert.Nil(t, client.WindBearing(r5))
	assert.Nil(t, client.WindBearingLabel(r5))

	assert.Nil(t, client.ForecastRecord(6, gismeteo.ModeHourly))
	assert.Nil(t, client.ForecastRecord(-1, gismeteo.ModeHourly))
}

func TestClient_Update_DailyForecast(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})
	require.NoError(t, client.Update(context.Background()))

	// Day blocks without a summary description carry hourly data only.
	r0 := client.ForecastRecord(0, gismeteo.ModeDaily)
	require.NotNil(t, r0)
	assert.Equal(t, time.Date(2021, 2, 21, 0, 0, 0, 0, zone).Unix(), r0.Time.Unix())
	assert.Equal(t, -5.0, *client.Temperature(r0))
	assert.Equal(t, -11.0, *client.TemperatureLow(r0))
	assert.Equal(t, "Cloudy, wet snow", *r0.Description)

	r1 := client.ForecastRecord(1, gismeteo.ModeDaily)
	require.NotNil(t, r1)
	assert.Equal(t, -4.0, *client.Temperature(r1))

	assert.Nil(t, client.ForecastRecord(2, gismeteo.ModeDaily))

	// Daily sunrise and sunset reflect the last day block of the feed.
	require.NotNil(t, r0.Sunrise)
	assert.Equal(t, int64(1614065580), r0.Sunrise.Unix())
	assert.Equal(t, int64(1614102720), r0.Sunset.Unix())
}

func TestClient_Update_MergedDetailData(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})
	require.NoError(t, client.Update(context.Background()))

	// Nil record defaults to today's daily record for detail-page fields.
	assert.Equal(t, 2, *client.UVIndex(nil))
	assert.Equal(t, 2, *client.PollenBirch(nil))
	assert.Nil(t, client.PollenGrass(nil))
	require.NotNil(t, client.RoadCondition(nil))
	assert.Equal(t, gismeteo.RoadDry, *client.RoadCondition(nil))
	assert.Equal(t, 6.0, *client.WindGustSpeed(client.ForecastRecord(0, gismeteo.ModeDaily)))

	r1 := client.ForecastRecord(1, gismeteo.ModeDaily)
	require.NotNil(t, r1)
	assert.Equal(t, 3, *client.UVIndex(r1))
	assert.Equal(t, 14.0, *client.WindGustSpeed(r1))
	require.NotNil(t, client.RoadCondition(r1))
	assert.Equal(t, gismeteo.RoadWater, *client.RoadCondition(r1))

	// Hourly records merge the same per-day values.
	h0 := client.ForecastRecord(0, gismeteo.ModeHourly)
	require.NotNil(t, h0)
	assert.Equal(t, 6.0, *client.WindGustSpeed(h0))

	// Dashes and the no-data road label degrade to unknown.
	h5 := client.ForecastRecord(5, gismeteo.ModeHourly)
	require.NotNil(t, h5)
	assert.Nil(t, client.WindGustSpeed(h5))
	assert.Nil(t, client.UVIndex(h5))
	assert.Nil(t, client.RoadCondition(h5))
}

func TestClient_Update_NowcastThrottle(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	now := time.Date(2021, 2, 21, 16, 30, 0, 0, zone)
	client := newTestClient(t, server, gismeteo.ClientConfig{
		Now: func() time.Time { return now },
	})

	require.NoError(t, client.Update(context.Background()))
	require.NoError(t, client.Update(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&counters.nowcast),
		"detail page fetched once within the throttle interval")
	assert.Equal(t, int64(2), atomic.LoadInt64(&counters.forecast))

	now = now.Add(62 * time.Minute)
	require.NoError(t, client.Update(context.Background()))
	assert.Equal(t, int64(2), atomic.LoadInt64(&counters.nowcast),
		"detail page refetched after the throttle interval")
}

func TestClient_Update_UsesCache(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	dir := t.TempDir()
	responseCache := cache.New(cache.Config{
		Dir:    dir,
		Domain: "gismeteo",
		TTL:    time.Minute,
	})

	client := newTestClient(t, server, gismeteo.ClientConfig{Cache: responseCache})
	require.NoError(t, client.Update(context.Background()))

	for _, name := range []string{"gismeteo.forecast_4079.xml", "gismeteo.forecast_parsed_4079.xml"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// Second update is served entirely from cache.
	require.NoError(t, client.Update(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&counters.forecast))
}

func TestClient_UpdateLocation(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{
		Latitude:  59.93,
		Longitude: 30.31,
	})

	require.NoError(t, client.UpdateLocation(context.Background()))
	assert.Equal(t, 4079, client.LocationID())

	lat, lon := client.Coordinates()
	assert.Equal(t, 59.94, lat)
	assert.Equal(t, 30.31, lon)

	// Update resolves the location transparently as well.
	require.NoError(t, client.Update(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&counters.cities))
}

func TestClient_Update_NoLocation(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	// The (0, 0) pair is a sentinel that is never resolved.
	cfg := gismeteo.ClientConfig{
		EndpointURL:      server.URL,
		NowcastURLFormat: server.URL + "/weather-%s/10-days/",
	}
	unresolved, err := gismeteo.NewClient(cfg)
	require.NoError(t, err)

	err = unresolved.Update(context.Background())
	assert.ErrorIs(t, err, gismeteo.ErrNoLocation)
	assert.Equal(t, int64(0), atomic.LoadInt64(&counters.cities))
}

func TestClient_Update_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not xml at all"))
	}))
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})

	err := client.Update(context.Background())
	require.Error(t, err)

	var apiErr *gismeteo.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestClient_UpdateLocation_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not xml at all"))
	}))
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{
		Latitude:  59.94,
		Longitude: 30.31,
	})

	err := client.UpdateLocation(context.Background())
	require.Error(t, err)

	var apiErr *gismeteo.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestClient_Update_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
	})

	err := client.Update(context.Background())
	require.Error(t, err)

	var apiErr *gismeteo.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestClient_Forecast_Entries(t *testing.T) {
	var counters testCounters
	server := newTestServer(t, &counters)
	defer server.Close()

	client := newTestClient(t, server, gismeteo.ClientConfig{})
	require.NoError(t, client.Update(context.Background()))

	hourly := client.Forecast(gismeteo.ModeHourly)
	require.Len(t, hourly, 6)
	assert.Equal(t, gismeteo.ConditionSnowy, hourly[0].Condition)
	assert.Equal(t, -7.0, *hourly[0].Temperature)
	assert.Nil(t, hourly[0].TemperatureLow)
	assert.NotNil(t, hourly[0].IsDaytime)
	assert.Equal(t, 10.8, *hourly[0].WindSpeed) // km/h
	assert.Equal(t, 180, *hourly[0].WindBearing)

	daily := client.Forecast(gismeteo.ModeDaily)
	require.Len(t, daily, 2)
	assert.Nil(t, daily[0].IsDaytime)
	assert.Equal(t, -11.0, *daily[0].TemperatureLow)
	assert.Equal(t, 2, *daily[0].UVIndex)
	require.NotNil(t, daily[0].RoadCondition)
	assert.Equal(t, gismeteo.RoadDry, *daily[0].RoadCondition)
}
