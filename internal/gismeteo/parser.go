package gismeteo

import (
	"strconv"
	"strings"
	"time"
)

// XML document structures for the Gismeteo inform-service feed. All
// attributes are decoded as strings and coerced field by field, so a
// single malformed attribute degrades to an unknown value instead of
// failing the whole parse.

type feedDocument struct {
	Location *locationNode `xml:"location"`
}

type locationNode struct {
	Tzone      string     `xml:"tzone,attr"`
	CurTime    string     `xml:"cur_time,attr"`
	NowcastURL string     `xml:"nowcast_url,attr"`
	Fact       *factNode  `xml:"fact"`
	Days       []*dayNode `xml:"day"`
}

type factNode struct {
	Valid   string     `xml:"valid,attr"`
	Sunrise string     `xml:"sunrise,attr"`
	Sunset  string     `xml:"sunset,attr"`
	Values  valuesNode `xml:"values"`
}

type dayNode struct {
	Date     string          `xml:"date,attr"`
	Descr    string          `xml:"descr,attr"`
	Sunrise  string          `xml:"sunrise,attr"`
	Sunset   string          `xml:"sunset,attr"`
	Tmax     string          `xml:"tmax,attr"`
	Tmin     string          `xml:"tmin,attr"`
	P        string          `xml:"p,attr"`
	Hum      string          `xml:"hum,attr"`
	Ws       string          `xml:"ws,attr"`
	Wd       string          `xml:"wd,attr"`
	Cl       string          `xml:"cl,attr"`
	Pt       string          `xml:"pt,attr"`
	Prflt    string          `xml:"prflt,attr"`
	Pr       string          `xml:"pr,attr"`
	Ts       string          `xml:"ts,attr"`
	Grademax string          `xml:"grademax,attr"`
	Forecast []*forecastNode `xml:"forecast"`
}

type forecastNode struct {
	Valid  string     `xml:"valid,attr"`
	Values valuesNode `xml:"values"`
}

type valuesNode struct {
	Descr  string `xml:"descr,attr"`
	Tflt   string `xml:"tflt,attr"`
	T      string `xml:"t,attr"`
	P      string `xml:"p,attr"`
	Hum    string `xml:"hum,attr"`
	Ws     string `xml:"ws,attr"`
	Wd     string `xml:"wd,attr"`
	Cl     string `xml:"cl,attr"`
	Pt     string `xml:"pt,attr"`
	Prflt  string `xml:"prflt,attr"`
	Pr     string `xml:"pr,attr"`
	Ts     string `xml:"ts,attr"`
	Grade  string `xml:"grade,attr"`
	Ph     string `xml:"ph,attr"`
	WaterT string `xml:"water_t,attr"`
}

type cityLookup struct {
	Item *struct {
		ID  string `xml:"id,attr"`
		Lat string `xml:"lat,attr"`
		Lng string `xml:"lng,attr"`
	} `xml:"item"`
}

// Coercion helpers. Each returns nil when the raw value is absent or
// cannot be converted; malformed fields degrade to unknown.

func atoi(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &v
}

// atoiNonZero coerces an integer attribute treating zero as absent.
// The feed emits p="0" for forecast points without pressure data.
func atoiNonZero(s string) *int {
	v := atoi(s)
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

func atof(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// epochTime converts an epoch-seconds attribute to a local datetime.
func epochTime(s string, loc *time.Location) *time.Time {
	v := atoi(s)
	if v == nil {
		return nil
	}
	t := time.Unix(int64(*v), 0).In(loc)
	return &t
}

// localTime parses a feed timestamp ("2006-01-02T15:04:05" or a bare date)
// in the fixed zone given by the feed's tzone offset in minutes. Date-only
// strings get midnight appended.
func localTime(s string, tzoneMinutes int) (time.Time, error) {
	loc := fixedZone(tzoneMinutes)
	if len(s) <= 10 {
		return time.ParseInLocation("2006-01-02", s, loc)
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
}

func fixedZone(tzoneMinutes int) *time.Location {
	return time.FixedZone("", tzoneMinutes*60)
}

// buildCurrent assembles the current-conditions record from the fact node.
func buildCurrent(fact *factNode, loc *time.Location) *Record {
	v := fact.Values
	storm := atoi(v.Ts)

	return &Record{
		Sunrise:                epochTime(fact.Sunrise, loc),
		Sunset:                 epochTime(fact.Sunset, loc),
		Description:            str(v.Descr),
		Temperature:            atof(v.Tflt),
		Pressure:               atoi(v.P),
		Humidity:               atoi(v.Hum),
		WindSpeed:              atof(v.Ws),
		WindBearing:            atoi(v.Wd),
		CloudCoverage:          atoi(v.Cl),
		PrecipitationType:      atoi(v.Pt),
		PrecipitationAmount:    atof(v.Prflt),
		PrecipitationIntensity: atoi(v.Pr),
		IsStorm:                boolPtr(storm != nil && *storm == 1),
		GeomagneticField:       atoi(v.Grade),
		Phenomenon:             atoi(v.Ph),
		WaterTemperature:       atof(v.WaterT),
	}
}

// buildHourly assembles the hourly forecast series from all day blocks,
// merging supplemental nowcast data keyed by local calendar day. It also
// returns the sunrise/sunset of the last iterated day block, which the
// daily series reuses (see buildDaily).
func buildHourly(days []*dayNode, tzone int, loc *time.Location, parsed SecondaryByDay) ([]Record, *time.Time, *time.Time, error) {
	var records []Record
	var lastSunrise, lastSunset *time.Time

	for _, day := range days {
		sunrise := epochTime(day.Sunrise, loc)
		sunset := epochTime(day.Sunset, loc)
		lastSunrise, lastSunset = sunrise, sunset

		for _, fc := range day.Forecast {
			v := fc.Values

			tstamp, err := localTime(fc.Valid, tzone)
			if err != nil {
				return nil, nil, nil, err
			}

			daytime := sunrise != nil && sunset != nil &&
				sunrise.Before(tstamp) && tstamp.Before(*sunset)
			storm := atoi(v.Ts)

			rec := Record{
				Sunrise:                sunrise,
				Sunset:                 sunset,
				Time:                   timePtr(tstamp),
				IsDaytime:              boolPtr(daytime),
				Description:            str(v.Descr),
				Temperature:            atof(v.T),
				Pressure:               atoiNonZero(v.P),
				Humidity:               atoi(v.Hum),
				WindSpeed:              atof(v.Ws),
				WindBearing:            atoi(v.Wd),
				CloudCoverage:          atoi(v.Cl),
				PrecipitationType:      atoi(v.Pt),
				PrecipitationAmount:    atof(v.Prflt),
				PrecipitationIntensity: atoi(v.Pr),
				IsStorm:                boolPtr(storm != nil && *storm == 1),
				GeomagneticField:       atoi(v.Grade),
			}

			mergeSecondary(&rec, parsed[dayKey(tstamp)])
			records = append(records, rec)
		}
	}

	return records, lastSunrise, lastSunset, nil
}

// buildDaily assembles the daily forecast series from the day blocks that
// carry a day-level summary description. Sunrise and sunset come from the
// last iterated hourly day block, matching the established feed handling.
func buildDaily(days []*dayNode, tzone int, sunrise, sunset *time.Time, parsed SecondaryByDay) ([]Record, error) {
	var records []Record

	for _, day := range days {
		if day.Descr == "" {
			continue
		}

		tstamp, err := localTime(day.Date, tzone)
		if err != nil {
			return nil, err
		}
		storm := atoi(day.Ts)

		rec := Record{
			Sunrise:                sunrise,
			Sunset:                 sunset,
			Time:                   timePtr(tstamp),
			Description:            str(day.Descr),
			Temperature:            atof(day.Tmax),
			TemperatureLow:         atof(day.Tmin),
			Pressure:               atoiNonZero(day.P),
			Humidity:               atoi(day.Hum),
			WindSpeed:              atof(day.Ws),
			WindBearing:            atoi(day.Wd),
			CloudCoverage:          atoi(day.Cl),
			PrecipitationType:      atoi(day.Pt),
			PrecipitationAmount:    atof(day.Prflt),
			PrecipitationIntensity: atoi(day.Pr),
			IsStorm:                boolPtr(storm != nil && *storm == 1),
			GeomagneticField:       atoi(day.Grademax),
		}

		mergeSecondary(&rec, parsed[dayKey(tstamp)])
		records = append(records, rec)
	}

	return records, nil
}

// mergeSecondary folds supplemental nowcast metrics into a record.
// A missing day entry leaves the record untouched.
func mergeSecondary(rec *Record, day map[string]string) {
	if day == nil {
		return
	}

	rec.WindGustSpeed = atof(day["wind-gust"])
	rec.PollenBirch = atoi(day["pollen-birch"])
	rec.PollenGrass = atoi(day["pollen-grass"])
	rec.PollenRagweed = atoi(day["pollen-ragweed"])
	rec.UVIndex = atoi(day["radiation"])
	rec.RoadCondition = str(day["roadcondition"])
}

func boolPtr(v bool) *bool { return &v }

func timePtr(v time.Time) *time.Time { return &v }
