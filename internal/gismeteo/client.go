// Package gismeteo implements a client for the Gismeteo weather API and
// its companion 10-day nowcast page: fetching, caching, normalization of
// the provider's loosely-typed fields and derivation of presentation
// values (apparent temperature, condition labels, wind bearing, rain and
// snow amounts).
package gismeteo

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gismeteo-go/gismeteo/internal/cache"
	"github.com/gismeteo-go/gismeteo/internal/provider/resilience"
)

const (
	// DefaultEndpointURL is the Gismeteo inform-service API base URL.
	DefaultEndpointURL = "https://services.gismeteo.ru/inform-service/inf_chrome"

	// DefaultNowcastURLFormat builds the 10-day detail page URL from the
	// location slug embedded in the forecast feed.
	DefaultNowcastURLFormat = "https://www.gismeteo.ru/weather-%s/10-days/"

	// NowcastUpdateInterval is the minimum interval between fetches of
	// the 10-day detail page.
	NowcastUpdateInterval = 61 * time.Minute

	// locationCacheTTL keeps resolved location lookups far beyond the
	// regular cache lifetime; city ids do not change.
	locationCacheTTL = 7 * 24 * time.Hour

	// browserUserAgent impersonates a desktop browser; the detail page
	// blocks non-browser clients.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/88.0.4324.182 Safari/537.36 Edg/88.0.705.81"
)

const (
	msgInvalidResponse = "invalid response from Gismeteo API"
	msgInvalidLocation = "can't retrieve location data: invalid server response"
	msgInvalidForecast = "can't update weather data: invalid server response"
)

// ClientConfig holds configuration for the Gismeteo client.
type ClientConfig struct {
	// LocationID is the provider-assigned location id. When zero, the id
	// is resolved from Latitude/Longitude on first use.
	LocationID int

	// Latitude and Longitude identify the location when no id is known.
	// The (0, 0) pair is treated as unset and never resolved.
	Latitude  float64
	Longitude float64

	// Cache is the optional file-backed response cache.
	Cache *cache.Cache

	// HTTPClient is the HTTP client to use (optional). If nil, uses a
	// resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// EndpointURL overrides the API base URL (tests).
	EndpointURL string

	// NowcastURLFormat overrides the detail page URL format (tests).
	NowcastURLFormat string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Client is a Gismeteo API client. Update rebuilds the current, hourly
// and daily series wholesale; a failed update leaves prior state intact.
//
// Concurrent Update calls on one client are serialized internally; the
// read accessors are safe to call at any time.
type Client struct {
	endpointURL      string
	nowcastURLFormat string
	httpClient       *resilience.Client
	cache            *cache.Cache
	logger           zerolog.Logger
	now              func() time.Time

	updateMu sync.Mutex   // serializes the update pipeline
	stateMu  sync.RWMutex // guards location identity and record series

	locationID int
	latitude   float64
	longitude  float64

	current *Record
	hourly  []Record
	daily   []Record

	// Nowcast throttle state, touched only under updateMu.
	parsed    SecondaryByDay
	nowcastAt time.Time
}

// NewClient creates a new Gismeteo client. Exactly one location identity
// is active: a known location id, or a coordinate pair to resolve.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.LocationID == 0 && !validCoordinates(cfg.Latitude, cfg.Longitude) {
		return nil, fmt.Errorf("%w: %v, %v", ErrInvalidCoordinates, cfg.Latitude, cfg.Longitude)
	}

	endpointURL := cfg.EndpointURL
	if endpointURL == "" {
		endpointURL = DefaultEndpointURL
	}

	nowcastURLFormat := cfg.NowcastURLFormat
	if nowcastURLFormat == "" {
		nowcastURLFormat = DefaultNowcastURLFormat
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("gismeteo"))
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		endpointURL:      endpointURL,
		nowcastURLFormat: nowcastURLFormat,
		httpClient:       httpClient,
		cache:            cfg.Cache,
		logger:           cfg.Logger,
		now:              now,
		locationID:       cfg.LocationID,
		latitude:         cfg.Latitude,
		longitude:        cfg.Longitude,
	}, nil
}

func validCoordinates(lat, lon float64) bool {
	return math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}

// LocationID returns the provider location id, or zero if not yet known.
func (c *Client) LocationID() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.locationID
}

// Coordinates returns the client's latitude and longitude.
func (c *Client) Coordinates() (lat, lon float64) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.latitude, c.longitude
}

// getData fetches a URL, consulting the cache first when a cache name is
// given and writing the body through on success. No retry policy beyond
// the transport client's; the hosting scheduler retries on its own cadence.
func (c *Client) getData(ctx context.Context, url, cacheName string, cacheTTL time.Duration, asBrowser bool) (string, error) {
	c.logger.Debug().Str("url", url).Msg("requesting URL")

	if c.cache != nil && cacheName != "" {
		// Historical quirk: the .xml suffix is applied even for HTML
		// payloads, for cache file name compatibility.
		cacheName += ".xml"
		if body, ok := c.cache.Read(cacheName, cacheTTL); ok {
			c.logger.Debug().Str("url", url).Msg("cached response used")
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if asBrowser {
		req.Header.Set("User-Agent", browserUserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APIError{Message: msgInvalidResponse, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: msgInvalidResponse}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Message: msgInvalidResponse, Err: err}
	}
	body := string(b)

	if c.cache != nil && cacheName != "" && body != "" {
		if err := c.cache.Save(cacheName, body); err != nil {
			c.logger.Warn().Err(err).Str("name", cacheName).Msg("failed to write cache")
		}
	}

	return body, nil
}

// UpdateLocation resolves the provider location id from the configured
// coordinates. Skipped entirely for the (0, 0) sentinel pair.
func (c *Client) UpdateLocation(ctx context.Context) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	return c.updateLocation(ctx)
}

func (c *Client) updateLocation(ctx context.Context) error {
	lat, lon := c.Coordinates()
	if lat == 0 && lon == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/cities/?lat=%g&lng=%g&count=1&lang=en", c.endpointURL, lat, lon)
	cacheName := fmt.Sprintf("location_%g_%g", lat, lon)

	body, err := c.getData(ctx, url, cacheName, locationCacheTTL, false)
	if err != nil {
		return err
	}

	var doc cityLookup
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return &APIError{Message: msgInvalidLocation, Err: err}
	}
	if doc.Item == nil {
		return &APIError{Message: msgInvalidLocation}
	}

	id := atoi(doc.Item.ID)
	if id == nil {
		return &APIError{Message: msgInvalidLocation}
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.logger.Debug().Int("id", *id).Msg("resolved location id")
	c.locationID = *id
	if v := atof(doc.Item.Lat); v != nil {
		c.latitude = *v
	}
	if v := atof(doc.Item.Lng); v != nil {
		c.longitude = *v
	}

	return nil
}

// ForecastDocument returns the raw forecast XML for the client's location,
// resolving the location id first if needed. Returns an empty string when
// no location id could be determined.
func (c *Client) ForecastDocument(ctx context.Context) (string, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	return c.forecastDocument(ctx)
}

func (c *Client) forecastDocument(ctx context.Context) (string, error) {
	if c.LocationID() == 0 {
		if err := c.updateLocation(ctx); err != nil {
			return "", err
		}
		if c.LocationID() == 0 {
			return "", nil
		}
	}

	id := c.LocationID()
	url := fmt.Sprintf("%s/forecast/?city=%d&lang=en", c.endpointURL, id)
	return c.getData(ctx, url, fmt.Sprintf("forecast_%d", id), 0, false)
}

// updateNowcast refreshes the supplemental per-day data from the 10-day
// detail page, at most once per NowcastUpdateInterval. The page URL is
// derived from the nowcast slug embedded in the forecast feed.
func (c *Client) updateNowcast(ctx context.Context, loc *locationNode, tzone int) error {
	if c.parsed != nil && c.now().Sub(c.nowcastAt) < NowcastUpdateInterval {
		return nil
	}

	curDate := loc.CurTime
	if len(curDate) > 10 {
		curDate = curDate[:10]
	}
	today, err := localTime(curDate, tzone)
	if err != nil {
		return &APIError{Message: msgInvalidForecast, Err: err}
	}

	slug := strings.Trim(loc.NowcastURL, "/")
	if len(slug) > 8 {
		slug = slug[8:] // drop the "weather-" prefix
	}

	url := fmt.Sprintf(c.nowcastURLFormat, slug)
	body, err := c.getData(ctx, url, fmt.Sprintf("forecast_parsed_%d", c.LocationID()), 0, true)
	if err != nil {
		return err
	}

	c.parsed = parseNowcastPage(body, today)
	c.nowcastAt = c.now()
	return nil
}

// Update runs the full pipeline: fetch the forecast feed, refresh the
// throttled nowcast data, parse and merge both sources, and atomically
// replace the current, hourly and daily series. On error the previously
// known data stays in place.
func (c *Client) Update(ctx context.Context) error {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	raw, err := c.forecastDocument(ctx)
	if err != nil {
		return err
	}
	if raw == "" {
		return ErrNoLocation
	}

	var doc feedDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return &APIError{Message: msgInvalidForecast, Err: err}
	}
	if doc.Location == nil || doc.Location.Fact == nil {
		return &APIError{Message: msgInvalidForecast}
	}

	tzone := atoi(doc.Location.Tzone)
	if tzone == nil {
		return &APIError{Message: msgInvalidForecast}
	}
	zone := fixedZone(*tzone)

	// The nowcast page URL depends on the slug in the primary response,
	// so this step is strictly sequenced after the forecast fetch.
	if err := c.updateNowcast(ctx, doc.Location, *tzone); err != nil {
		return err
	}

	current := buildCurrent(doc.Location.Fact, zone)

	hourly, lastSunrise, lastSunset, err := buildHourly(doc.Location.Days, *tzone, zone, c.parsed)
	if err != nil {
		return &APIError{Message: msgInvalidForecast, Err: err}
	}

	daily, err := buildDaily(doc.Location.Days, *tzone, lastSunrise, lastSunset, c.parsed)
	if err != nil {
		return &APIError{Message: msgInvalidForecast, Err: err}
	}

	c.stateMu.Lock()
	c.current = current
	c.hourly = hourly
	c.daily = daily
	c.stateMu.Unlock()

	c.logger.Debug().
		Int("hourly", len(hourly)).
		Int("daily", len(daily)).
		Msg("weather data updated")

	return nil
}

// Current returns the current-conditions record, or nil before the first
// successful update.
func (c *Client) Current() *Record {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.current
}

// series returns the raw record series for a mode.
func (c *Client) series(mode Mode) []Record {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if mode == ModeDaily {
		return c.daily
	}
	return c.hourly
}
