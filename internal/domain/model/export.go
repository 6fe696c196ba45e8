package model

// ForecastExportRow is the Parquet layout of an exported forecast hour.
// Times are epoch milliseconds (UTC).
type ForecastExportRow struct {
	LocationID               int64    `parquet:"name=location_id, type=INT64"`
	NeighborhoodName         string   `parquet:"name=neighborhood_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	GroupLabel               *string  `parquet:"name=group_label, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude                 float64  `parquet:"name=latitude, type=DOUBLE"`
	Longitude                float64  `parquet:"name=longitude, type=DOUBLE"`
	ForecastTime             int64    `parquet:"name=forecast_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Temperature2m            *float64 `parquet:"name=temperature_2m, type=DOUBLE, repetitiontype=OPTIONAL"`
	ApparentTemperature      *float64 `parquet:"name=apparent_temperature, type=DOUBLE, repetitiontype=OPTIONAL"`
	RelativeHumidity2m       *float64 `parquet:"name=relative_humidity_2m, type=DOUBLE, repetitiontype=OPTIONAL"`
	PrecipitationProbability *int64   `parquet:"name=precipitation_probability, type=INT64, repetitiontype=OPTIONAL"`
	Precipitation            *float64 `parquet:"name=precipitation, type=DOUBLE, repetitiontype=OPTIONAL"`
	Snowfall                 *float64 `parquet:"name=snowfall, type=DOUBLE, repetitiontype=OPTIONAL"`
	WeatherCode              *int64   `parquet:"name=weather_code, type=INT64, repetitiontype=OPTIONAL"`
	CloudCover               *float64 `parquet:"name=cloud_cover, type=DOUBLE, repetitiontype=OPTIONAL"`
	Visibility               *float64 `parquet:"name=visibility, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindSpeed10m             *float64 `parquet:"name=wind_speed_10m, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindDirection10m         *float64 `parquet:"name=wind_direction_10m, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindGusts10m             *float64 `parquet:"name=wind_gusts_10m, type=DOUBLE, repetitiontype=OPTIONAL"`
	LoadedAt                 int64    `parquet:"name=loaded_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// ToExportRow converts a queried forecast hour.
func (h HourlyForecast) ToExportRow() ForecastExportRow {
	return ForecastExportRow{
		LocationID:               h.LocationID,
		NeighborhoodName:         h.NeighborhoodName,
		GroupLabel:               h.GroupLabel,
		Latitude:                 h.Latitude,
		Longitude:                h.Longitude,
		ForecastTime:             h.ForecastTime.UTC().UnixMilli(),
		Temperature2m:            h.Temperature2m,
		ApparentTemperature:      h.ApparentTemperature,
		RelativeHumidity2m:       h.RelativeHumidity2m,
		PrecipitationProbability: h.PrecipitationProbability,
		Precipitation:            h.Precipitation,
		Snowfall:                 h.Snowfall,
		WeatherCode:              h.WeatherCode,
		CloudCover:               h.CloudCover,
		Visibility:               h.Visibility,
		WindSpeed10m:             h.WindSpeed10m,
		WindDirection10m:         h.WindDirection10m,
		WindGusts10m:             h.WindGusts10m,
		LoadedAt:                 h.LoadedAt.UTC().UnixMilli(),
	}
}
