package types

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 coordinate reported by an agent device or taken from
// an order's delivery address.
type GeoPoint struct {
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	RecordedAt *Timestamp `json:"timestamp,omitempty"`
}

// Validate checks latitude/longitude ranges.
func (g GeoPoint) Validate() error {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lng) {
		return fmt.Errorf("coordinates must be numbers")
	}
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("lat %v out of range", g.Lat)
	}
	if g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("lng %v out of range", g.Lng)
	}
	return nil
}

// PointFrom builds a GeoPoint when both components are present.
func PointFrom(lat, lng *float64) *GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &GeoPoint{Lat: *lat, Lng: *lng}
}
