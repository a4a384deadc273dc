// Package testutil carries shared test fixtures. The image builders here
// produce real encodable JPEG/PNG bytes so pipeline tests exercise the same
// decoders production does, including a hand-assembled EXIF segment with a
// GPS fix.
package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}

// PlainJPEG returns a small JPEG with no metadata segments beyond what the
// stdlib encoder writes.
func PlainJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

// PlainPNG returns a small PNG.
func PlainPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}

// JPEGWithGPS returns PlainJPEG with an EXIF APP1 segment carrying the
// given decimal-degree fix, spliced directly after the SOI marker.
func JPEGWithGPS(t *testing.T, lat, lng float64) []byte {
	t.Helper()
	base := PlainJPEG(t)
	app1 := exifAPP1(lat, lng)
	out := make([]byte, 0, len(base)+len(app1))
	out = append(out, base[:2]...) // SOI
	out = append(out, app1...)
	out = append(out, base[2:]...)
	return out
}

// exifAPP1 assembles a minimal little-endian TIFF with an IFD0 entry
// pointing at a GPS IFD (refs + degree/minute/second rationals), wrapped in
// a JPEG APP1 segment.
func exifAPP1(lat, lng float64) []byte {
	const (
		tagGPSInfo      = 0x8825
		tagLatitudeRef  = 0x0001
		tagLatitude     = 0x0002
		tagLongitudeRef = 0x0003
		tagLongitude    = 0x0004
		typeASCII       = 2
		typeLong        = 4
		typeRational    = 5
	)

	latRef := byte('N')
	if lat < 0 {
		latRef = 'S'
	}
	lngRef := byte('E')
	if lng < 0 {
		lngRef = 'W'
	}

	var tiff bytes.Buffer
	le := binary.LittleEndian
	u16 := func(v uint16) { _ = binary.Write(&tiff, le, v) }
	u32 := func(v uint32) { _ = binary.Write(&tiff, le, v) }

	// Header: byte order, magic, offset of IFD0.
	tiff.WriteString("II")
	u16(42)
	u32(8)

	// IFD0: one entry, the GPS IFD pointer. Ends at byte 26.
	u16(1)
	u16(tagGPSInfo)
	u16(typeLong)
	u32(1)
	u32(26)
	u32(0)

	// GPS IFD: four entries, data area starting at byte 80.
	u16(4)
	u16(tagLatitudeRef)
	u16(typeASCII)
	u32(2)
	tiff.Write([]byte{latRef, 0, 0, 0})
	u16(tagLatitude)
	u16(typeRational)
	u32(3)
	u32(80)
	u16(tagLongitudeRef)
	u16(typeASCII)
	u32(2)
	tiff.Write([]byte{lngRef, 0, 0, 0})
	u16(tagLongitude)
	u16(typeRational)
	u32(3)
	u32(104)
	u32(0)

	writeDMS := func(deg float64) {
		abs := math.Abs(deg)
		d := math.Floor(abs)
		rem := (abs - d) * 60
		m := math.Floor(rem)
		sec := (rem - m) * 60
		u32(uint32(d))
		u32(1)
		u32(uint32(m))
		u32(1)
		u32(uint32(math.Round(sec * 10000)))
		u32(10000)
	}
	writeDMS(lat)
	writeDMS(lng)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	segment := make([]byte, 0, len(payload)+4)
	segment = append(segment, 0xFF, 0xE1)
	length := uint16(len(payload) + 2)
	segment = append(segment, byte(length>>8), byte(length))
	segment = append(segment, payload...)
	return segment
}

// HasJPEGSegment reports whether the JPEG contains a segment with the given
// marker byte (e.g. 0xE1 for APP1). Used to assert redaction stripped
// metadata.
func HasJPEGSegment(data []byte, marker byte) bool {
	i := 2 // skip SOI
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return false
		}
		m := data[i+1]
		if m == marker {
			return true
		}
		if m == 0xDA || m == 0xD9 { // start of scan / end of image
			return false
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		i += 2 + segLen
	}
	return false
}
