package navigator

import (
	"context"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/model"
)

const earthRadiusMeters = 6371000.0

// Annotation is the destination marker for a navigation request.
type Annotation struct {
	Title       string
	Subtitle    string
	Coordinate  model.Coordinate
	DistanceKm  int
	HasDistance bool
}

// NavigateTo resolves b's address and builds the destination marker.
// from is the caller's last known location; without it no distance is computed.
// On a geocode miss an "Invalid Address" notice is posted and false returned.
func (n *Navigator) NavigateTo(ctx context.Context, b model.Bookmark, from *model.Coordinate) (Annotation, bool) {
	c := n.ForwardGeocode(ctx, b.Address)
	if c == nil {
		n.invalidAddress()
		return Annotation{}, false
	}
	a := Annotation{Title: b.Title(), Coordinate: *c}
	if from != nil {
		a.DistanceKm = int(DistanceMeters(*from, *c) / 1000)
		a.HasDistance = true
		a.Subtitle = strconv.Itoa(a.DistanceKm) + " Km"
	}
	n.log.Debug("navigate",
		zap.String("title", a.Title),
		zap.Float64("lat", c.Latitude),
		zap.Float64("lng", c.Longitude),
	)
	return a, true
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b model.Coordinate) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLat := lat2 - lat1
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
