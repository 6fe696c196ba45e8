// Package model holds rows read back from the star schema for the dashboard
// API and the Parquet export.
package model

import "time"

// Location is a dim_location row.
type Location struct {
	LocationID       int64     `gorm:"column:location_id" json:"location_id"`
	NeighborhoodName string    `gorm:"column:neighborhood_name" json:"name"`
	GroupLabel       *string   `gorm:"column:group_label" json:"group_label,omitempty"`
	Latitude         float64   `gorm:"column:latitude" json:"latitude"`
	Longitude        float64   `gorm:"column:longitude" json:"longitude"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// CurrentWeather is the latest current-conditions row of a location.
type CurrentWeather struct {
	NeighborhoodName    string    `gorm:"column:neighborhood_name" json:"name"`
	GroupLabel          *string   `gorm:"column:group_label" json:"group_label,omitempty"`
	ObservationTime     time.Time `gorm:"column:observation_time" json:"observation_time"`
	Temperature2m       *float64  `gorm:"column:temperature_2m" json:"temperature_2m"`
	ApparentTemperature *float64  `gorm:"column:apparent_temperature" json:"apparent_temperature"`
	RelativeHumidity2m  *float64  `gorm:"column:relative_humidity_2m" json:"relative_humidity_2m"`
	WindSpeed10m        *float64  `gorm:"column:wind_speed_10m" json:"wind_speed_10m"`
	Precipitation       *float64  `gorm:"column:precipitation" json:"precipitation"`
	WeatherCode         *int64    `gorm:"column:weather_code" json:"weather_code"`
	IsDay               *int64    `gorm:"column:is_day" json:"is_day"`
	LoadedAt            time.Time `gorm:"column:loaded_at" json:"loaded_at"`
}

// HourlyForecast is one forecast hour joined with its location.
type HourlyForecast struct {
	LocationID               int64     `gorm:"column:location_id" json:"location_id"`
	NeighborhoodName         string    `gorm:"column:neighborhood_name" json:"name"`
	GroupLabel               *string   `gorm:"column:group_label" json:"group_label,omitempty"`
	Latitude                 float64   `gorm:"column:latitude" json:"latitude"`
	Longitude                float64   `gorm:"column:longitude" json:"longitude"`
	ForecastTime             time.Time `gorm:"column:forecast_time" json:"forecast_time"`
	Temperature2m            *float64  `gorm:"column:temperature_2m" json:"temperature_2m"`
	ApparentTemperature      *float64  `gorm:"column:apparent_temperature" json:"apparent_temperature"`
	RelativeHumidity2m       *float64  `gorm:"column:relative_humidity_2m" json:"relative_humidity_2m"`
	PrecipitationProbability *int64    `gorm:"column:precipitation_probability" json:"precipitation_probability"`
	Precipitation            *float64  `gorm:"column:precipitation" json:"precipitation"`
	Snowfall                 *float64  `gorm:"column:snowfall" json:"snowfall"`
	WeatherCode              *int64    `gorm:"column:weather_code" json:"weather_code"`
	CloudCover               *float64  `gorm:"column:cloud_cover" json:"cloud_cover"`
	Visibility               *float64  `gorm:"column:visibility" json:"visibility"`
	WindSpeed10m             *float64  `gorm:"column:wind_speed_10m" json:"wind_speed_10m"`
	WindDirection10m         *float64  `gorm:"column:wind_direction_10m" json:"wind_direction_10m"`
	WindGusts10m             *float64  `gorm:"column:wind_gusts_10m" json:"wind_gusts_10m"`
	LoadedAt                 time.Time `gorm:"column:loaded_at" json:"loaded_at"`
}

// TableFreshness describes how much data a fact table holds and when it was
// last written.
type TableFreshness struct {
	Table      string     `json:"table"`
	Rows       int64      `json:"rows"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
}
