package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/i474232898/trail-status/internal/trail"
)

type trailheadEntry struct {
	Name    string `toml:"name" validate:"required"`
	Address string `toml:"address" validate:"required"`
	Note    string `toml:"note"`
}

type trailEntry struct {
	ID         string           `toml:"id" validate:"required,alphanum,lowercase"`
	Name       string           `toml:"name" validate:"required"`
	Kind       string           `toml:"kind" validate:"required,oneof=calendar image"`
	Source     string           `toml:"source" validate:"required"`
	Lat        float64          `toml:"lat" validate:"gte=-90,lte=90"`
	Lon        float64          `toml:"lon" validate:"gte=-180,lte=180"`
	Trailheads []trailheadEntry `toml:"trailhead" validate:"dive"`
}

type trailFile struct {
	Trails []trailEntry `toml:"trail" validate:"required,min=1,unique=ID,dive"`
}

// LoadTrails reads the trail table from a TOML file. A missing file yields
// DefaultTrails.
func LoadTrails(path string) ([]trail.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTrails(), nil
		}
		return nil, fmt.Errorf("open trails file: %w", err)
	}
	return ParseTrails(data)
}

// ParseTrails decodes and validates a TOML trail table.
func ParseTrails(data []byte) ([]trail.Config, error) {
	var raw trailFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse trails: %w", err)
	}
	for i := range raw.Trails {
		raw.Trails[i].ID = strings.TrimSpace(raw.Trails[i].ID)
		raw.Trails[i].Source = strings.TrimSpace(raw.Trails[i].Source)
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid trails: %w", err)
	}

	out := make([]trail.Config, 0, len(raw.Trails))
	for _, t := range raw.Trails {
		heads := make([]trail.Trailhead, 0, len(t.Trailheads))
		for _, h := range t.Trailheads {
			heads = append(heads, trail.Trailhead{Name: h.Name, Address: h.Address, Note: h.Note})
		}
		out = append(out, trail.Config{
			ID:         t.ID,
			Name:       t.Name,
			Kind:       trail.SourceKind(t.Kind),
			Source:     t.Source,
			Coordinate: trail.Coordinate{Lat: t.Lat, Lon: t.Lon},
			Trailheads: heads,
		})
	}
	return out, nil
}

// DefaultTrails is the built-in Miami Valley trail table.
func DefaultTrails() []trail.Config {
	return []trail.Config{
		{
			ID:         "momba",
			Name:       "MoMBA",
			Kind:       trail.SourceCalendar,
			Source:     "https://calendar.google.com/calendar/ical/mombastatus%40gmail.com/public/basic.ics",
			Coordinate: trail.Coordinate{Lat: 40.05, Lon: -84.22},
			Trailheads: []trail.Trailhead{
				{Name: "Main Entrance", Address: "4485 Union Rd, Dayton, OH 45424"},
			},
		},
		{
			ID:         "johnbryan",
			Name:       "John Bryan",
			Kind:       trail.SourceImage,
			Source:     "128228967211438",
			Coordinate: trail.Coordinate{Lat: 39.79, Lon: -83.89},
			Trailheads: []trail.Trailhead{
				{Name: "Trailhead", Address: "John Bryan Mountain Bike Trail, Yellow Springs, OH 45387"},
			},
		},
		{
			ID:         "caesarcreek",
			Name:       "Caesar Creek",
			Kind:       trail.SourceImage,
			Source:     "576124532419546",
			Coordinate: trail.Coordinate{Lat: 39.49, Lon: -84.06},
			Trailheads: []trail.Trailhead{
				{Name: "Ward Trailhead", Address: "Caesar Creek Ward Rd MTB Trail Head, Waynesville, OH 45068"},
				{Name: "Campground", Address: "Caesar Creek Campground Loop MTB Trailhead, Wilmington, OH 45177"},
				{Name: "Harveysburg", Address: "5563-5679 Harveysburg Rd, Waynesville, OH 45068"},
			},
		},
		{
			ID:         "troy",
			Name:       "Troy MTB",
			Kind:       trail.SourceImage,
			Source:     "322521698109617",
			Coordinate: trail.Coordinate{Lat: 40.04, Lon: -84.20},
			Trailheads: []trail.Trailhead{
				{Name: "Main Entrance", Address: "1670 Troy-Sidney Rd, Troy, OH 45373", Note: "Open sunrise to sunset"},
			},
		},
	}
}
