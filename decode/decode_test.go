package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStdDecode(t *testing.T) {
	t.Parallel()

	t.Run("decodes png", func(t *testing.T) {
		t.Parallel()
		data := encodePNG(t, 4, 3)

		img, err := New().Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "png", img.Format)
		assert.Equal(t, len(data), img.Bytes)
		assert.Equal(t, digest.FromBytes(data), img.Digest)
		assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	})

	t.Run("decodes gif", func(t *testing.T) {
		t.Parallel()
		pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
		var buf bytes.Buffer
		require.NoError(t, gif.Encode(&buf, pal, nil))

		img, err := New().Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "gif", img.Format)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		t.Parallel()
		_, err := New().Decode([]byte("definitely not an image"))
		require.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		_, err := New().Decode(nil)
		require.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("enforces max pixels", func(t *testing.T) {
		t.Parallel()
		data := encodePNG(t, 10, 10)

		_, err := New(WithMaxPixels(99)).Decode(data)
		require.ErrorIs(t, err, ErrTooLarge)

		img, err := New(WithMaxPixels(100)).Decode(data)
		require.NoError(t, err)
		assert.NotNil(t, img)
	})
}

func TestDecoderFunc(t *testing.T) {
	t.Parallel()

	want := &Image{Format: "fake"}
	var got []byte
	d := DecoderFunc(func(data []byte) (*Image, error) {
		got = data
		return want, nil
	})

	img, err := d.Decode([]byte("abc"))
	require.NoError(t, err)
	assert.Same(t, want, img)
	assert.Equal(t, []byte("abc"), got)
}
