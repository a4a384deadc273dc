package exif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecred/pkg/testutil"
)

func TestExtractGPS(t *testing.T) {
	t.Run("extracts a fix from tagged photos", func(t *testing.T) {
		data := testutil.JPEGWithGPS(t, 40.7128, -74.0060)

		loc, err := ExtractGPS(data)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.InDelta(t, 40.7128, loc.Lat, 1e-4)
		assert.InDelta(t, -74.0060, loc.Lng, 1e-4)
	})

	t.Run("southern and eastern hemispheres", func(t *testing.T) {
		data := testutil.JPEGWithGPS(t, -33.8688, 151.2093)

		loc, err := ExtractGPS(data)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.InDelta(t, -33.8688, loc.Lat, 1e-4)
		assert.InDelta(t, 151.2093, loc.Lng, 1e-4)
	})

	t.Run("photo without exif yields no fix", func(t *testing.T) {
		loc, err := ExtractGPS(testutil.PlainJPEG(t))
		assert.Nil(t, loc)
		assert.Error(t, err)
	})

	t.Run("garbage bytes yield an error", func(t *testing.T) {
		loc, err := ExtractGPS([]byte("not an image"))
		assert.Nil(t, loc)
		assert.Error(t, err)
	})
}
