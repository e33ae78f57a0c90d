// Package geo provides great-circle distance and distance-decay scoring for
// POI ranking. All functions are pure.
package geo

import (
	"fmt"
	"math"
)

const (
	EarthRadiusKm = 6371.0

	// DefaultMaxDistanceKm is where the linear decay reaches zero.
	DefaultMaxDistanceKm = 10.0

	// NeutralDistanceScore is assigned to every record when no reference
	// point is supplied. It is a fixed midpoint, not an estimated distance.
	NeutralDistanceScore = 0.5
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLat := lat2Rad - lat1Rad
	dLon := toRadians(lon2) - toRadians(lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a marginally above 1 for antipodal points
	a = math.Min(1, a)
	c := 2 * math.Asin(math.Sqrt(a))
	return EarthRadiusKm * c
}

func Distance(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// DistanceScore maps a distance onto [0, 1] with linear decay. The score is
// exactly 0 at or beyond maxDistanceKm and non-increasing in distance.
func DistanceScore(distanceKm, maxDistanceKm float64) float64 {
	if maxDistanceKm <= 0 || distanceKm >= maxDistanceKm {
		return 0
	}
	score := 1 - distanceKm/maxDistanceKm
	return math.Max(0, math.Min(1, score))
}

// ExponentialDistanceScore decays as exp(-rate * d); it penalises far
// results harder than the linear decay but never reaches zero.
func ExponentialDistanceScore(distanceKm, decayRate float64) float64 {
	if distanceKm < 0 {
		distanceKm = 0
	}
	return math.Exp(-decayRate * distanceKm)
}

// Box is an axis-aligned latitude/longitude rectangle.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// BoundingBox approximates the box enclosing a circle of radiusKm around
// center, using ~111 km per degree of latitude.
func BoundingBox(center Point, radiusKm float64) Box {
	latDiff := radiusKm / 111.0
	lonDiff := radiusKm / (111.0 * math.Cos(toRadians(center.Lat)))
	return Box{
		MinLat: center.Lat - latDiff,
		MaxLat: center.Lat + latDiff,
		MinLon: center.Lon - lonDiff,
		MaxLon: center.Lon + lonDiff,
	}
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// FormatDistance renders metres below 1 km and kilometres otherwise.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%.0f m", km*1000)
	}
	return fmt.Sprintf("%.2f km", km)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
