package geo

import (
	"github.com/umahmood/haversine"

	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// DistanceKm returns the great-circle distance between two points using an
// earth radius of 6371 km.
func DistanceKm(a, b types.GeoPoint) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lng},
		haversine.Coord{Lat: b.Lat, Lon: b.Lng},
	)
	return km
}
