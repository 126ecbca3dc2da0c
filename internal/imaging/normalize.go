// Package imaging converts downloaded artwork to the canonical still-image encoding.
package imaging

import (
	"bytes"
	"image"
	"image/png"

	// Decoders for the formats artwork providers serve.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/whatsnowplaying/artcache/internal/errors"
)

// Normalize decodes an artwork payload and re-encodes it as PNG. Input that
// is already PNG is still re-encoded so every stored blob has the exact same
// canonical form. Undecodable payloads are an error; the caller treats the
// source URL as permanently bad.
func Normalize(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Context("operation", "decode").
			Context("payload_bytes", len(data)).
			Build()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Context("operation", "encode-png").
			Context("source_format", format).
			Build()
	}

	return buf.Bytes(), nil
}
