// Package geocode translates between street addresses and coordinates.
package geocode

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
)

// Candidate is one provider result. Either part may be missing; Postal fields may be individually empty.
type Candidate struct {
	Coordinate *model.Coordinate
	Postal     *model.PostalAddress
}

// Provider is an external geocoding service.
type Provider interface {
	// Forward resolves a free-form address.
	Forward(ctx context.Context, address string) ([]Candidate, error)
	// Reverse resolves a coordinate to structured addresses.
	Reverse(ctx context.Context, c model.Coordinate) ([]Candidate, error)
}

// Geocoder applies the result-selection rules on top of a Provider.
type Geocoder struct {
	p   Provider
	log *zap.Logger
}

// New constructs a Geocoder.
func New(p Provider, log *zap.Logger) *Geocoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Geocoder{p: p, log: log}
}

// Forward returns the first candidate's coordinate.
// Zero candidates, a candidate without coordinate and provider errors all yield errs.ErrGeocodeMiss.
func (g *Geocoder) Forward(ctx context.Context, address string) (model.Coordinate, error) {
	cands, err := g.p.Forward(ctx, address)
	if err != nil {
		g.log.Warn("forward geocode failed", zap.String("address", address), zap.Error(err))
		return model.Coordinate{}, fmt.Errorf("forward %q: %v: %w", address, err, errs.ErrGeocodeMiss)
	}
	if len(cands) == 0 || cands[0].Coordinate == nil {
		return model.Coordinate{}, fmt.Errorf("forward %q: %w", address, errs.ErrGeocodeMiss)
	}
	return *cands[0].Coordinate, nil
}

// Reverse returns the first candidate's structured address. All four fields
// must be present; a partial address is discarded with errs.ErrIncompleteAddress.
func (g *Geocoder) Reverse(ctx context.Context, c model.Coordinate) (model.PostalAddress, error) {
	cands, err := g.p.Reverse(ctx, c)
	if err != nil {
		g.log.Warn("reverse geocode failed",
			zap.Float64("lat", c.Latitude),
			zap.Float64("lng", c.Longitude),
			zap.Error(err),
		)
		return model.PostalAddress{}, fmt.Errorf("reverse: %v: %w", err, errs.ErrGeocodeMiss)
	}
	if len(cands) == 0 || cands[0].Postal == nil {
		return model.PostalAddress{}, fmt.Errorf("reverse: %w", errs.ErrGeocodeMiss)
	}
	pa := *cands[0].Postal
	if !pa.Complete() {
		return model.PostalAddress{}, fmt.Errorf("reverse: %+v: %w", pa, errs.ErrIncompleteAddress)
	}
	return pa, nil
}
