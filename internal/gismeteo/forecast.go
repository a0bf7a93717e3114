package gismeteo

import "time"

// prunedSeries returns the forecast records still worth presenting:
// records wholly in the past are dropped, except the most recent one,
// which stands in for "now" until the next record's time arrives.
func (c *Client) prunedSeries(mode Mode) []*Record {
	now := c.now()
	series := c.series(mode)

	var out []*Record
	for i := range series {
		r := &series[i]
		if r.Time == nil {
			continue
		}
		if r.Time.Before(now) {
			out = out[:0]
		}
		out = append(out, r)
	}
	return out
}

// ForecastRecord returns the forecast record at the given position in
// the pruned series, or nil when out of range. Position zero is the
// record covering the present moment.
func (c *Client) ForecastRecord(pos int, mode Mode) *Record {
	series := c.prunedSeries(mode)
	if pos < 0 || pos >= len(series) {
		return nil
	}
	return series[pos]
}

// Forecast renders the pruned series as presentation entries with all
// derived values resolved. Daily entries report date-only timestamps.
func (c *Client) Forecast(mode Mode) []ForecastEntry {
	series := c.prunedSeries(mode)

	entries := make([]ForecastEntry, 0, len(series))
	for _, r := range series {
		entry := ForecastEntry{
			Condition:              c.Condition(r, mode),
			Temperature:            c.Temperature(r),
			ApparentTemperature:    c.ApparentTemperature(r),
			Pressure:               c.PressureHPa(r),
			Humidity:               c.Humidity(r),
			WindBearing:            c.WindBearing(r),
			WindBearingLabel:       c.WindBearingLabel(r),
			WindGustSpeed:          c.WindGustSpeed(r),
			WindSpeed:              c.WindSpeedKMH(r),
			PrecipitationType:      c.PrecipitationType(r),
			PrecipitationAmount:    c.PrecipitationAmount(r),
			PrecipitationIntensity: c.PrecipitationIntensity(r),
			UVIndex:                r.UVIndex,
			RoadCondition:          c.RoadCondition(r),
		}
		if r.Time != nil {
			entry.Time = *r.Time
		}
		if mode == ModeHourly {
			entry.IsDaytime = r.IsDaytime
		} else {
			entry.TemperatureLow = c.TemperatureLow(r)
		}
		entries = append(entries, entry)
	}
	return entries
}

// Sunrise returns today's sunrise time, or nil when unknown.
func (c *Client) Sunrise() *time.Time {
	r := c.Current()
	if r == nil {
		return nil
	}
	return r.Sunrise
}

// Sunset returns today's sunset time, or nil when unknown.
func (c *Client) Sunset() *time.Time {
	r := c.Current()
	if r == nil {
		return nil
	}
	return r.Sunset
}
