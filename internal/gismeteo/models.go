package gismeteo

import (
	"errors"
	"fmt"
	"time"
)

// Gismeteo errors.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNoLocation         = errors.New("no location known")
)

// APIError is returned when a Gismeteo request or response was invalid.
// StatusCode is zero for parse failures.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d", e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Mode selects between the hourly and daily forecast series.
type Mode string

const (
	ModeHourly Mode = "hourly"
	ModeDaily  Mode = "daily"
)

// Condition is a derived weather condition label. The empty string means
// the condition could not be determined.
type Condition string

const (
	ConditionUnknown        Condition = ""
	ConditionSunny          Condition = "sunny"
	ConditionClearNight     Condition = "clear-night"
	ConditionPartlyCloudy   Condition = "partlycloudy"
	ConditionCloudy         Condition = "cloudy"
	ConditionRainy          Condition = "rainy"
	ConditionPouring        Condition = "pouring"
	ConditionSnowy          Condition = "snowy"
	ConditionSnowyRainy     Condition = "snowy-rainy"
	ConditionLightning      Condition = "lightning"
	ConditionLightningRainy Condition = "lightning-rainy"
	ConditionWindy          Condition = "windy"
	ConditionWindyVariant   Condition = "windy-variant"
	ConditionFog            Condition = "fog"
)

// RoadCondition is a derived road surface state.
type RoadCondition string

const (
	RoadDry   RoadCondition = "dry"
	RoadWater RoadCondition = "water"
	RoadWet   RoadCondition = "wet"
)

// Record holds the normalized fields of one observation or forecast point.
// Nil means the field was absent or malformed in the source document;
// numeric zero values are never used as "unknown".
type Record struct {
	// Time is the forecast timestep; nil for current conditions.
	Time      *time.Time
	Sunrise   *time.Time
	Sunset    *time.Time
	IsDaytime *bool

	// Description is the provider's human-readable summary.
	Description *string

	Temperature    *float64 // Celsius
	TemperatureLow *float64 // daily minimum, Celsius
	Pressure       *int     // mmHg, as delivered by the feed
	Humidity       *int     // percent
	WindSpeed      *float64 // m/s
	WindBearing    *int     // sector code 0-8, 0 = no data
	CloudCoverage  *int     // 0-3 scale

	PrecipitationType      *int // 0 none, 1 rain, 2 snow, 3 snow-rain
	PrecipitationAmount    *float64
	PrecipitationIntensity *int // 0 none, 1 small, 2 normal, 3 heavy

	IsStorm          *bool
	GeomagneticField *int
	Phenomenon       *int
	WaterTemperature *float64

	// Supplemental fields merged from the 10-day nowcast page.
	WindGustSpeed *float64 // m/s
	PollenBirch   *int
	PollenGrass   *int
	PollenRagweed *int
	UVIndex       *int
	RoadCondition *string // raw provider label
}

// SecondaryByDay maps a local calendar date (formatted "2006-01-02") to
// the supplemental nowcast metrics scraped for that day.
type SecondaryByDay map[string]map[string]string

// dayKey derives the SecondaryByDay key for a local timestamp.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ForecastEntry is a display-ready forecast point with all derived fields
// computed and null fields dropped on serialization.
type ForecastEntry struct {
	Time                   time.Time      `json:"datetime"`
	IsDaytime              *bool          `json:"is_daytime,omitempty"`
	Condition              Condition      `json:"condition,omitempty"`
	ApparentTemperature    *float64       `json:"apparent_temperature,omitempty"`
	Temperature            *float64       `json:"temperature,omitempty"`
	TemperatureLow         *float64       `json:"templow,omitempty"`
	Pressure               *float64       `json:"pressure,omitempty"` // hPa
	Humidity               *int           `json:"humidity,omitempty"`
	WindBearing            *int           `json:"wind_bearing,omitempty"`
	WindBearingLabel       *string        `json:"wind_bearing_label,omitempty"`
	WindGustSpeed          *float64       `json:"wind_gust_speed,omitempty"`
	WindSpeed              *float64       `json:"wind_speed,omitempty"`
	PrecipitationType      *string        `json:"precipitation_type,omitempty"`
	PrecipitationAmount    *float64       `json:"precipitation_amount,omitempty"`
	PrecipitationIntensity *string        `json:"precipitation_intensity,omitempty"`
	UVIndex                *int           `json:"uv_index,omitempty"`
	RoadCondition          *RoadCondition `json:"road_condition,omitempty"`
}

// Unit conversion factors.
const (
	// MmHgToHPa converts the feed's native mmHg pressure to hectopascals.
	MmHgToHPa = 1.333223684

	// MSToKMH converts meters per second to kilometers per hour.
	MSToKMH = 3.6
)

// precipitationAmountByIntensity is the fallback precipitation amount in mm
// when the feed carries an intensity code but no explicit amount.
var precipitationAmountByIntensity = [4]float64{0, 2, 6, 16}

// strongBreezeThreshold is the wind speed in m/s above which conditions
// are classified as windy (Beaufort 6).
const strongBreezeThreshold = 10.8

// fogPhenomena are the provider phenomenon codes classified as fog.
var fogPhenomena = map[int]bool{
	11: true, 12: true, 28: true, 40: true, 41: true, 42: true, 43: true,
	44: true, 45: true, 46: true, 47: true, 48: true, 49: true, 120: true,
	130: true, 131: true, 132: true, 133: true, 134: true, 135: true, 528: true,
}
