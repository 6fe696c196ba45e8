// Package entity holds the values that flow between pipeline stages: catalog
// points and the typed weather payloads returned by the fetch client.
package entity

import "fmt"

// Point is one named coordinate from the catalog. Coordinates are normalized
// to six decimal places by the catalog loader.
type Point struct {
	Name       string  `json:"name" validate:"required"`
	Latitude   float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"longitude" validate:"gte=-180,lte=180"`
	GroupLabel string  `json:"group_label,omitempty"`
}

func (p Point) String() string {
	if p.GroupLabel != "" {
		return fmt.Sprintf("%s [%s] (%.6f, %.6f)", p.Name, p.GroupLabel, p.Latitude, p.Longitude)
	}
	return fmt.Sprintf("%s (%.6f, %.6f)", p.Name, p.Latitude, p.Longitude)
}

// FetchKind selects the payload requested from the weather API.
type FetchKind string

const (
	KindCurrent  FetchKind = "current"
	KindForecast FetchKind = "forecast"
)

// ParseFetchKind accepts "current" and "forecast" (also "hourly").
func ParseFetchKind(s string) (FetchKind, error) {
	switch s {
	case "current":
		return KindCurrent, nil
	case "forecast", "hourly":
		return KindForecast, nil
	}
	return "", fmt.Errorf("unknown fetch kind %q", s)
}
