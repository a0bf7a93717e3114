package gismeteo

import (
	"math"
	"time"
)

// Label maps for the provider's enumerated codes. Unknown codes map to
// nil rather than a guess.
var (
	windBearingLabels = []string{"n", "ne", "e", "se", "s", "sw", "w", "nw"}

	precipitationTypeLabels = map[int]string{
		0: "none",
		1: "rain",
		2: "snow",
		3: "snow-rain",
	}

	precipitationIntensityLabels = map[int]string{
		0: "none",
		1: "small",
		2: "normal",
		3: "heavy",
	}
)

// record resolves the source record for an accessor: the given record,
// or the current-conditions record when nil.
func (c *Client) record(r *Record) *Record {
	if r != nil {
		return r
	}
	return c.Current()
}

// dailyRecord resolves the source record for nowcast-sourced accessors:
// the given record, or today's daily forecast record when nil.
func (c *Client) dailyRecord(r *Record) *Record {
	if r != nil {
		return r
	}
	return c.ForecastRecord(0, ModeDaily)
}

// Temperature returns the air temperature in Celsius.
func (c *Client) Temperature(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.Temperature
}

// TemperatureLow returns the minimum temperature of a daily record.
func (c *Client) TemperatureLow(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.TemperatureLow
}

// ApparentTemperature returns the Australian apparent temperature in
// Celsius, derived from temperature, humidity and wind speed, rounded to
// one decimal place.
func (c *Client) ApparentTemperature(r *Record) *float64 {
	r = c.record(r)
	if r == nil || r.Temperature == nil || r.Humidity == nil || r.WindSpeed == nil {
		return nil
	}

	temp := *r.Temperature
	humidity := float64(*r.Humidity)
	wind := *r.WindSpeed

	e := humidity * 0.06105 * math.Exp(17.27*temp/(237.7+temp))
	feels := temp + 0.348*e - 0.7*wind - 4.25
	feels = math.Round(feels*10) / 10
	return &feels
}

// WaterTemperature returns the water temperature in Celsius.
func (c *Client) WaterTemperature(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.WaterTemperature
}

// Pressure returns the atmospheric pressure in mmHg.
func (c *Client) Pressure(r *Record) *int {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.Pressure
}

// PressureHPa returns the atmospheric pressure converted to hPa, rounded
// to one decimal place.
func (c *Client) PressureHPa(r *Record) *float64 {
	p := c.Pressure(r)
	if p == nil {
		return nil
	}
	v := math.Round(float64(*p)*MmHgToHPa*10) / 10
	return &v
}

// Humidity returns the relative humidity in percent.
func (c *Client) Humidity(r *Record) *int {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.Humidity
}

// WindSpeed returns the wind speed in m/s.
func (c *Client) WindSpeed(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.WindSpeed
}

// WindSpeedKMH returns the wind speed converted to km/h, rounded to one
// decimal place.
func (c *Client) WindSpeedKMH(r *Record) *float64 {
	w := c.WindSpeed(r)
	if w == nil {
		return nil
	}
	v := math.Round(*w*MSToKMH*10) / 10
	return &v
}

// WindGustSpeed returns the wind gust speed in m/s, available once the
// 10-day detail data has been merged.
func (c *Client) WindGustSpeed(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.WindGustSpeed
}

// WindBearing returns the wind direction in meteorological degrees.
// Sector code zero means no data.
func (c *Client) WindBearing(r *Record) *int {
	r = c.record(r)
	if r == nil || r.WindBearing == nil || *r.WindBearing == 0 {
		return nil
	}
	deg := (*r.WindBearing - 1) * 45
	return &deg
}

// WindBearingLabel returns the compass label for the wind direction.
func (c *Client) WindBearingLabel(r *Record) *string {
	r = c.record(r)
	if r == nil || r.WindBearing == nil {
		return nil
	}
	sector := *r.WindBearing - 1
	if sector < 0 || sector >= len(windBearingLabels) {
		return nil
	}
	label := windBearingLabels[sector]
	return &label
}

// CloudCoveragePercent maps the 0..3 cloudiness code to a percentage.
func (c *Client) CloudCoveragePercent(r *Record) *int {
	r = c.record(r)
	if r == nil || r.CloudCoverage == nil {
		return nil
	}
	pct := *r.CloudCoverage * 100 / 3
	return &pct
}

// PrecipitationType returns the precipitation kind label.
func (c *Client) PrecipitationType(r *Record) *string {
	r = c.record(r)
	if r == nil || r.PrecipitationType == nil {
		return nil
	}
	label, ok := precipitationTypeLabels[*r.PrecipitationType]
	if !ok {
		return nil
	}
	return &label
}

// PrecipitationIntensity returns the precipitation intensity label.
func (c *Client) PrecipitationIntensity(r *Record) *string {
	r = c.record(r)
	if r == nil || r.PrecipitationIntensity == nil {
		return nil
	}
	label, ok := precipitationIntensityLabels[*r.PrecipitationIntensity]
	if !ok {
		return nil
	}
	return &label
}

// PrecipitationAmount returns the measured precipitation amount in mm,
// falling back to a nominal per-intensity amount when no measurement is
// reported.
func (c *Client) PrecipitationAmount(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return precipitationAmount(r)
}

func precipitationAmount(r *Record) *float64 {
	if r.PrecipitationAmount != nil {
		return r.PrecipitationAmount
	}
	if r.PrecipitationIntensity == nil {
		return nil
	}
	code := *r.PrecipitationIntensity
	if code < 0 || code >= len(precipitationAmountByIntensity) {
		return nil
	}
	amount := precipitationAmountByIntensity[code]
	return &amount
}

// RainAmount returns the liquid precipitation amount in mm: the amount
// when the precipitation type includes rain, zero otherwise.
func (c *Client) RainAmount(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return typedAmount(r, 1)
}

// SnowAmount returns the frozen precipitation amount in mm: the amount
// when the precipitation type includes snow, zero otherwise.
func (c *Client) SnowAmount(r *Record) *float64 {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return typedAmount(r, 2)
}

// typedAmount splits the precipitation amount by kind. Kind 3 is mixed
// snow-rain and counts for both; an unknown kind contributes nothing.
func typedAmount(r *Record, kind int) *float64 {
	if r.PrecipitationType == nil || (*r.PrecipitationType != kind && *r.PrecipitationType != 3) {
		zero := 0.0
		return &zero
	}
	return precipitationAmount(r)
}

// IsStorm reports whether a thunderstorm is forecast.
func (c *Client) IsStorm(r *Record) *bool {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.IsStorm
}

// GeomagneticField returns the geomagnetic activity grade.
func (c *Client) GeomagneticField(r *Record) *int {
	r = c.record(r)
	if r == nil {
		return nil
	}
	return r.GeomagneticField
}

// UVIndex returns the ultraviolet index from the 10-day detail data.
func (c *Client) UVIndex(r *Record) *int {
	r = c.dailyRecord(r)
	if r == nil {
		return nil
	}
	return r.UVIndex
}

// PollenBirch returns the birch pollen level from the 10-day detail data.
func (c *Client) PollenBirch(r *Record) *int {
	r = c.dailyRecord(r)
	if r == nil {
		return nil
	}
	return r.PollenBirch
}

// PollenGrass returns the grass pollen level from the 10-day detail data.
func (c *Client) PollenGrass(r *Record) *int {
	r = c.dailyRecord(r)
	if r == nil {
		return nil
	}
	return r.PollenGrass
}

// PollenRagweed returns the ragweed pollen level from the 10-day detail
// data.
func (c *Client) PollenRagweed(r *Record) *int {
	r = c.dailyRecord(r)
	if r == nil {
		return nil
	}
	return r.PollenRagweed
}

// roadConditionLabels translates the provider's localized road state
// strings. "Нет данных" (no data) maps to nil without a warning.
var roadConditionLabels = map[string]RoadCondition{
	"Сухая дорога":   RoadDry,
	"Вода":           RoadWater,
	"Влажная дорога": RoadWet,
}

// RoadCondition returns the road surface state from the 10-day detail
// data. Unrecognized values are logged and reported as unknown.
func (c *Client) RoadCondition(r *Record) *RoadCondition {
	r = c.dailyRecord(r)
	if r == nil || r.RoadCondition == nil {
		return nil
	}
	raw := *r.RoadCondition
	if raw == "Нет данных" {
		return nil
	}
	label, ok := roadConditionLabels[raw]
	if !ok {
		c.logger.Warn().Str("value", raw).Msg("unknown road condition value")
		return nil
	}
	return &label
}

// conditionRule is one step of the condition classifier. Rules run in
// order and the first match wins.
type conditionRule struct {
	match func(r *Record, base Condition) bool
	apply func(r *Record, base Condition) Condition
}

var conditionRules = []conditionRule{
	{
		// Thunderstorm. A nil precipitation type still upgrades to the
		// rainy variant.
		match: func(r *Record, _ Condition) bool {
			return r.IsStorm != nil && *r.IsStorm
		},
		apply: func(r *Record, _ Condition) Condition {
			if r.PrecipitationType == nil || *r.PrecipitationType != 0 {
				return ConditionLightningRainy
			}
			return ConditionLightning
		},
	},
	{
		match: func(r *Record, _ Condition) bool {
			return r.PrecipitationType != nil && *r.PrecipitationType == 1
		},
		apply: func(r *Record, _ Condition) Condition {
			if r.PrecipitationIntensity != nil && *r.PrecipitationIntensity == 3 {
				return ConditionPouring
			}
			return ConditionRainy
		},
	},
	{
		match: func(r *Record, _ Condition) bool {
			return r.PrecipitationType != nil && *r.PrecipitationType == 2
		},
		apply: func(_ *Record, _ Condition) Condition {
			return ConditionSnowy
		},
	},
	{
		match: func(r *Record, _ Condition) bool {
			return r.PrecipitationType != nil && *r.PrecipitationType == 3
		},
		apply: func(_ *Record, _ Condition) Condition {
			return ConditionSnowyRainy
		},
	},
	{
		// Strong breeze or above on the Beaufort scale.
		match: func(r *Record, _ Condition) bool {
			return windSpeedOrZero(r) > strongBreezeThreshold
		},
		apply: func(_ *Record, base Condition) Condition {
			if base == ConditionCloudy {
				return ConditionWindyVariant
			}
			return ConditionWindy
		},
	},
	{
		// Fog is only reported over an otherwise clear sky.
		match: func(r *Record, _ Condition) bool {
			if r.CloudCoverage == nil || *r.CloudCoverage != 0 || r.Phenomenon == nil {
				return false
			}
			return fogPhenomena[*r.Phenomenon]
		},
		apply: func(_ *Record, _ Condition) Condition {
			return ConditionFog
		},
	},
}

func windSpeedOrZero(r *Record) float64 {
	if r.WindSpeed == nil {
		return 0
	}
	return *r.WindSpeed
}

// baseCondition classifies the sky state from cloud coverage alone. Daily
// records always render a clear sky as sunny; hourly and current records
// distinguish night, the latter by comparing the clock against sunrise
// and sunset. Overcast and any heavier code map to cloudy. The caller
// guarantees a non-nil cloud coverage.
func baseCondition(r *Record, mode Mode, now time.Time) Condition {
	switch *r.CloudCoverage {
	case 0:
		if mode == ModeDaily {
			return ConditionSunny
		}
		if r.IsDaytime != nil {
			if !*r.IsDaytime {
				return ConditionClearNight
			}
			return ConditionSunny
		}
		if r.Sunrise != nil && r.Sunset != nil &&
			!(r.Sunrise.Before(now) && now.Before(*r.Sunset)) {
			return ConditionClearNight
		}
		return ConditionSunny
	case 1, 2:
		return ConditionPartlyCloudy
	default:
		return ConditionCloudy
	}
}

// Condition classifies a record into a weather condition label. The sky
// state from cloud coverage is the base; precipitation, storm, wind and
// fog rules override it in priority order. A record with no cloud
// coverage is unknown outright, whatever else it carries.
func (c *Client) Condition(r *Record, mode Mode) Condition {
	r = c.record(r)
	if r == nil || r.CloudCoverage == nil {
		return ConditionUnknown
	}

	base := baseCondition(r, mode, c.now())
	for _, rule := range conditionRules {
		if rule.match(r, base) {
			return rule.apply(r, base)
		}
	}
	return base
}
