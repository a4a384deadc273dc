// Package exif extracts GPS metadata from uploaded images and produces the
// metadata-stripped derivative. Both operations are best-effort from the
// pipeline's point of view: a photo that cannot be parsed still verifies.
package exif

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// Location is a decimal-degree GPS fix read from EXIF tags.
type Location struct {
	Lat float64
	Lng float64
}

// ExtractGPS returns the GPS fix embedded in the image, (nil, nil) when the
// image carries EXIF but no GPS tags, and an error when the EXIF block
// itself is unreadable. Callers treat every non-fix outcome as hasGps=false.
func ExtractGPS(data []byte) (*Location, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		// EXIF present, no usable GPS fix.
		return nil, nil
	}
	return &Location{Lat: lat, Lng: lng}, nil
}
