// Package decode turns raw image bytes into decoded images.
//
// The standard decoder understands JPEG, PNG and GIF through the standard
// library and WebP and BMP through golang.org/x/image. Callers that need a
// different codec can supply any [Decoder].
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registered formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/opencontainers/go-digest"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Sentinel errors for decoding.
var (
	// ErrUnsupported is returned when the bytes are not in a known image format.
	ErrUnsupported = errors.New("decode: unsupported image format")

	// ErrTooLarge is returned when the image header declares more pixels than allowed.
	ErrTooLarge = errors.New("decode: image too large")

	// ErrEmpty is returned when there is nothing to decode.
	ErrEmpty = errors.New("decode: empty input")
)

// Image is a decoded bitmap plus the metadata collected while fetching it.
//
// Images are passed by pointer. Whoever holds the pointer (a cache tier, a
// target, or an in-flight task) keeps the pixels alive.
type Image struct {
	image.Image

	// Format is the codec name reported by the decoder (e.g. "png").
	Format string

	// Digest is the digest of the raw encoded bytes.
	Digest digest.Digest

	// Bytes is the size of the raw encoded bytes.
	Bytes int
}

// Decoder decodes raw bytes into an Image.
//
// Implementations must be safe for concurrent use.
type Decoder interface {
	Decode(data []byte) (*Image, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) (*Image, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (*Image, error) {
	return f(data)
}

// Std decodes using the image formats registered with the image package.
type Std struct {
	maxPixels int64
}

// Option configures a Std decoder.
type Option func(*Std)

// WithMaxPixels rejects images whose declared width*height exceeds n.
// Values <= 0 disable the limit.
func WithMaxPixels(n int64) Option {
	return func(s *Std) {
		s.maxPixels = n
	}
}

// New creates a standard decoder.
func New(opts ...Option) *Std {
	s := &Std{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decode implements Decoder.
func (s *Std) Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	if s.maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, mapError(err)
		}
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > s.maxPixels {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, s.maxPixels)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mapError(err)
	}

	return &Image{
		Image:  img,
		Format: format,
		Digest: digest.FromBytes(data),
		Bytes:  len(data),
	}, nil
}

func mapError(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return err
}
