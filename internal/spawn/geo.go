package spawn

import (
	"math"
	"math/rand"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// MetersPerDegree approximates the length of one degree of latitude.
const MetersPerDegree = 111300.0

// RandomLocationNear returns a point uniformly distributed by area within
// radiusMeters of origin. Longitude offsets are stretched by 1/cos(lat).
func RandomLocationNear(rng *rand.Rand, origin creature.Position, radiusMeters float64) creature.Position {
	if radiusMeters <= 0 {
		return origin
	}
	r := radiusMeters / MetersPerDegree
	w := r * math.Sqrt(rng.Float64())
	t := 2 * math.Pi * rng.Float64()

	dLat := w * math.Cos(t)
	dLng := 0.0
	if c := math.Cos(origin.Lat * math.Pi / 180); math.Abs(c) > 1e-9 {
		dLng = w * math.Sin(t) / c
	}
	return creature.Position{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng}
}

// DistanceMeters is the equirectangular distance between two nearby points,
// using the same degree scale as RandomLocationNear.
func DistanceMeters(a, b creature.Position) float64 {
	meanLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dLat := (b.Lat - a.Lat) * MetersPerDegree
	dLng := (b.Lng - a.Lng) * MetersPerDegree * math.Cos(meanLat)
	return math.Hypot(dLat, dLng)
}
