// Package catalog loads the named coordinate points a job fetches weather for.
//
// The accepted JSON shapes are:
//
//	[{"name": ..., "latitude": ..., "longitude": ...}, ...]
//	{"neighborhoods": [...]}  or  {"points": [...]}
//	{"groups": [{"group_label": ..., "points": [...]}]}
//	{"community_boards": [{"borough": ..., "board": ..., "neighborhoods": [...]}]}
//
// A document that mixes a grouped key with a flat key is rejected.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"

	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const module = "catalog"

// CoordinateScale is the number of decimal places coordinates are kept at.
const CoordinateScale = 6

// Shape identifies the catalog layout that was detected.
type Shape string

const (
	ShapeFlat            Shape = "flat"
	ShapeGrouped         Shape = "grouped"
	ShapeCommunityBoards Shape = "community_boards"
)

type rawPoint struct {
	Name      string      `json:"name"`
	Latitude  json.Number `json:"latitude"`
	Longitude json.Number `json:"longitude"`
}

type rawGroup struct {
	GroupLabel string     `json:"group_label"`
	Points     []rawPoint `json:"points"`
}

type rawBoard struct {
	Borough       string      `json:"borough"`
	Board         json.Number `json:"board"`
	Name          string      `json:"name"`
	Neighborhoods []rawPoint  `json:"neighborhoods"`
}

type rawDocument struct {
	Neighborhoods   []rawPoint `json:"neighborhoods"`
	Points          []rawPoint `json:"points"`
	Groups          []rawGroup `json:"groups"`
	CommunityBoards []rawBoard `json:"community_boards"`
}

// Catalog is a loaded, validated point list.
type Catalog struct {
	Shape  Shape
	Points []entity.Point
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses the catalog file at path. Any failure is a
// configuration error.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.New(module, exception.KindConfig, fmt.Sprintf("read catalog %s", path), err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d points from %s (%s shape).", len(c.Points), path, c.Shape)
	return c, nil
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, exception.New(module, exception.KindConfig, "catalog is empty", nil)
	}

	c := &Catalog{}
	var err error
	if trimmed[0] == '[' {
		var raw []rawPoint
		if err := decode(trimmed, &raw); err != nil {
			return nil, err
		}
		c.Shape = ShapeFlat
		c.Points, err = convert(raw, "", "")
	} else {
		var doc rawDocument
		if err := decode(trimmed, &doc); err != nil {
			return nil, err
		}
		c.Shape, c.Points, err = fromDocument(doc)
	}
	if err != nil {
		return nil, err
	}
	if len(c.Points) == 0 {
		return nil, exception.New(module, exception.KindConfig, "catalog contains no points", nil)
	}
	warnDuplicates(c.Points)
	return c, nil
}

func decode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return exception.New(module, exception.KindConfig, "malformed catalog JSON", err)
	}
	return nil
}

func fromDocument(doc rawDocument) (Shape, []entity.Point, error) {
	grouped := doc.Groups != nil || doc.CommunityBoards != nil
	flat := doc.Neighborhoods != nil || doc.Points != nil
	switch {
	case grouped && flat:
		return "", nil, exception.New(module, exception.KindConfig,
			"catalog mixes grouped (groups/community_boards) and flat (neighborhoods/points) keys", nil)
	case doc.Groups != nil && doc.CommunityBoards != nil:
		return "", nil, exception.New(module, exception.KindConfig, "catalog has both groups and community_boards", nil)
	case doc.CommunityBoards != nil:
		var out []entity.Point
		for i, b := range doc.CommunityBoards {
			if strings.TrimSpace(b.Borough) == "" {
				return "", nil, exception.Newf(module, exception.KindConfig, "community board %d has no borough", i)
			}
			label := strings.TrimSpace(b.Borough + " " + b.Board.String())
			pts, err := convert(b.Neighborhoods, label, b.Borough+" - ")
			if err != nil {
				return "", nil, err
			}
			out = append(out, pts...)
		}
		return ShapeCommunityBoards, out, nil
	case doc.Groups != nil:
		var out []entity.Point
		for _, g := range doc.Groups {
			pts, err := convert(g.Points, strings.TrimSpace(g.GroupLabel), "")
			if err != nil {
				return "", nil, err
			}
			out = append(out, pts...)
		}
		return ShapeGrouped, out, nil
	case doc.Neighborhoods != nil:
		pts, err := convert(doc.Neighborhoods, "", "")
		return ShapeFlat, pts, err
	case doc.Points != nil:
		pts, err := convert(doc.Points, "", "")
		return ShapeFlat, pts, err
	}
	return "", nil, exception.New(module, exception.KindConfig,
		"catalog has none of the keys neighborhoods, points, groups, community_boards", nil)
}

func convert(raw []rawPoint, groupLabel, namePrefix string) ([]entity.Point, error) {
	out := make([]entity.Point, 0, len(raw))
	for i, r := range raw {
		lat, err := NormalizeCoordinate(r.Latitude.String())
		if err != nil {
			return nil, exception.Newf(module, exception.KindConfig, "point %d (%s): latitude: %v", i, r.Name, err)
		}
		lon, err := NormalizeCoordinate(r.Longitude.String())
		if err != nil {
			return nil, exception.Newf(module, exception.KindConfig, "point %d (%s): longitude: %v", i, r.Name, err)
		}
		name := strings.TrimSpace(r.Name)
		if name != "" {
			name = namePrefix + name
		}
		p := entity.Point{Name: name, Latitude: lat, Longitude: lon, GroupLabel: groupLabel}
		if err := validate.Struct(p); err != nil {
			return nil, exception.Newf(module, exception.KindConfig, "point %d (%q) is invalid", i, r.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// NormalizeCoordinate rounds a decimal-degree string half-up to
// CoordinateScale places. Rounding happens in decimal so that equal inputs
// always produce the same key for the location dimension.
func NormalizeCoordinate(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q", s)
	}
	var q apd.Decimal
	ctx := apd.BaseContext.WithPrecision(16)
	ctx.Rounding = apd.RoundHalfUp
	if _, err := ctx.Quantize(&q, d, -CoordinateScale); err != nil {
		return 0, fmt.Errorf("cannot scale %q: %w", s, err)
	}
	return q.Float64()
}

func warnDuplicates(points []entity.Point) {
	seen := make(map[[2]float64]string, len(points))
	for _, p := range points {
		key := [2]float64{p.Latitude, p.Longitude}
		if other, ok := seen[key]; ok {
			logger.Warnf("Catalog points %q and %q share coordinates (%.6f, %.6f); the later name wins in dim_location.",
				other, p.Name, p.Latitude, p.Longitude)
			continue
		}
		seen[key] = p.Name
	}
}
