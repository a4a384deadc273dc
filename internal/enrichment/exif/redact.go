package exif

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// jpegQuality for re-encoded derivatives. High enough that the admin can
// still read a handwritten daily code off the photo.
const jpegQuality = 92

// Redact decodes the image and re-encodes its pixels, which drops every
// metadata segment (EXIF, XMP, ICC, comments) regardless of whether the
// source had any. Returns the derivative bytes and their content type.
func Redact(data []byte, contentType string) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	switch contentType {
	case "image/png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		// Everything else re-encodes as JPEG, matching the upload path's
		// *_verification.jpg naming.
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}
