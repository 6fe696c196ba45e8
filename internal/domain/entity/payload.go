package entity

// Payload is a decoded weather API response. Exactly one of Current or Hourly
// is set, depending on the requested kind. Measurements are pointers (or
// slices of pointers) so that an absent or null value stays distinguishable
// from zero all the way into the database.
type Payload struct {
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	Timezone         string             `json:"timezone"`
	UTCOffsetSeconds int                `json:"utc_offset_seconds"`
	Current          *CurrentConditions `json:"current,omitempty"`
	Hourly           *HourlySeries      `json:"hourly,omitempty"`
}

// CurrentFields are the instantaneous fields requested for current conditions.
var CurrentFields = []string{
	"temperature_2m", "relative_humidity_2m", "apparent_temperature", "is_day",
	"wind_speed_10m", "wind_direction_10m", "wind_gusts_10m",
	"precipitation", "rain", "showers", "snowfall",
	"weather_code", "cloud_cover", "pressure_msl", "surface_pressure",
}

// CurrentConditions is one snapshot. Time is the observation timestamp as
// returned by the API (local time without offset, or RFC 3339).
type CurrentConditions struct {
	Time                string   `json:"time"`
	Interval            *int     `json:"interval,omitempty"`
	Temperature2m       *float64 `json:"temperature_2m"`
	RelativeHumidity2m  *float64 `json:"relative_humidity_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	IsDay               *int     `json:"is_day"`
	WindSpeed10m        *float64 `json:"wind_speed_10m"`
	WindDirection10m    *float64 `json:"wind_direction_10m"`
	WindGusts10m        *float64 `json:"wind_gusts_10m"`
	Precipitation       *float64 `json:"precipitation"`
	Rain                *float64 `json:"rain"`
	Showers             *float64 `json:"showers"`
	Snowfall            *float64 `json:"snowfall"`
	WeatherCode         *int     `json:"weather_code"`
	CloudCover          *float64 `json:"cloud_cover"`
	PressureMSL         *float64 `json:"pressure_msl"`
	SurfacePressure     *float64 `json:"surface_pressure"`
}

// Values returns the measurements in CurrentFields order; nil marks a missing value.
func (c *CurrentConditions) Values() []interface{} {
	return []interface{}{
		nullable(c.Temperature2m), nullable(c.RelativeHumidity2m), nullable(c.ApparentTemperature), nullable(c.IsDay),
		nullable(c.WindSpeed10m), nullable(c.WindDirection10m), nullable(c.WindGusts10m),
		nullable(c.Precipitation), nullable(c.Rain), nullable(c.Showers), nullable(c.Snowfall),
		nullable(c.WeatherCode), nullable(c.CloudCover), nullable(c.PressureMSL), nullable(c.SurfacePressure),
	}
}

// HourlyFields are the fields requested for the hourly forecast.
var HourlyFields = []string{
	"temperature_2m", "relative_humidity_2m", "dew_point_2m", "apparent_temperature",
	"precipitation_probability", "precipitation", "rain", "showers", "snowfall", "snow_depth",
	"weather_code", "pressure_msl", "surface_pressure",
	"cloud_cover", "cloud_cover_low", "cloud_cover_mid", "cloud_cover_high",
	"visibility", "evapotranspiration", "et0_fao_evapotranspiration", "vapour_pressure_deficit",
	"wind_speed_10m", "wind_speed_80m", "wind_speed_120m", "wind_speed_180m",
	"wind_direction_10m", "wind_direction_80m", "wind_direction_120m", "wind_direction_180m",
	"wind_gusts_10m",
	"temperature_80m", "temperature_120m", "temperature_180m",
}

// HourlySeries holds parallel arrays indexed like Time. Arrays may be shorter
// than Time; missing positions read as nil.
type HourlySeries struct {
	Time                     []string   `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
	DewPoint2m               []*float64 `json:"dew_point_2m"`
	ApparentTemperature      []*float64 `json:"apparent_temperature"`
	PrecipitationProbability []*int     `json:"precipitation_probability"`
	Precipitation            []*float64 `json:"precipitation"`
	Rain                     []*float64 `json:"rain"`
	Showers                  []*float64 `json:"showers"`
	Snowfall                 []*float64 `json:"snowfall"`
	SnowDepth                []*float64 `json:"snow_depth"`
	WeatherCode              []*int     `json:"weather_code"`
	PressureMSL              []*float64 `json:"pressure_msl"`
	SurfacePressure          []*float64 `json:"surface_pressure"`
	CloudCover               []*float64 `json:"cloud_cover"`
	CloudCoverLow            []*float64 `json:"cloud_cover_low"`
	CloudCoverMid            []*float64 `json:"cloud_cover_mid"`
	CloudCoverHigh           []*float64 `json:"cloud_cover_high"`
	Visibility               []*float64 `json:"visibility"`
	Evapotranspiration       []*float64 `json:"evapotranspiration"`
	ET0FAOEvapotranspiration []*float64 `json:"et0_fao_evapotranspiration"`
	VapourPressureDeficit    []*float64 `json:"vapour_pressure_deficit"`
	WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	WindSpeed80m             []*float64 `json:"wind_speed_80m"`
	WindSpeed120m            []*float64 `json:"wind_speed_120m"`
	WindSpeed180m            []*float64 `json:"wind_speed_180m"`
	WindDirection10m         []*float64 `json:"wind_direction_10m"`
	WindDirection80m         []*float64 `json:"wind_direction_80m"`
	WindDirection120m        []*float64 `json:"wind_direction_120m"`
	WindDirection180m        []*float64 `json:"wind_direction_180m"`
	WindGusts10m             []*float64 `json:"wind_gusts_10m"`
	Temperature80m           []*float64 `json:"temperature_80m"`
	Temperature120m          []*float64 `json:"temperature_120m"`
	Temperature180m          []*float64 `json:"temperature_180m"`
}

// Len is the number of hours in the series.
func (h *HourlySeries) Len() int {
	return len(h.Time)
}

// ValuesAt returns the measurements for hour i in HourlyFields order.
func (h *HourlySeries) ValuesAt(i int) []interface{} {
	return []interface{}{
		at(h.Temperature2m, i), at(h.RelativeHumidity2m, i), at(h.DewPoint2m, i), at(h.ApparentTemperature, i),
		at(h.PrecipitationProbability, i), at(h.Precipitation, i), at(h.Rain, i), at(h.Showers, i), at(h.Snowfall, i), at(h.SnowDepth, i),
		at(h.WeatherCode, i), at(h.PressureMSL, i), at(h.SurfacePressure, i),
		at(h.CloudCover, i), at(h.CloudCoverLow, i), at(h.CloudCoverMid, i), at(h.CloudCoverHigh, i),
		at(h.Visibility, i), at(h.Evapotranspiration, i), at(h.ET0FAOEvapotranspiration, i), at(h.VapourPressureDeficit, i),
		at(h.WindSpeed10m, i), at(h.WindSpeed80m, i), at(h.WindSpeed120m, i), at(h.WindSpeed180m, i),
		at(h.WindDirection10m, i), at(h.WindDirection80m, i), at(h.WindDirection120m, i), at(h.WindDirection180m, i),
		at(h.WindGusts10m, i),
		at(h.Temperature80m, i), at(h.Temperature120m, i), at(h.Temperature180m, i),
	}
}

// at reads position i of s, treating out-of-range positions as missing.
func at[T any](s []*T, i int) interface{} {
	if i < 0 || i >= len(s) {
		return nil
	}
	return nullable(s[i])
}

// nullable unwraps p so that database drivers receive either a value or an
// untyped nil (SQL NULL).
func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
