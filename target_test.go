package imgload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlot(t *testing.T) {
	t.Parallel()

	var s Slot
	assert.Nil(t, s.Image())
	assert.True(t, s.Binding().IsZero())
	_, ok := s.Placeholder()
	assert.False(t, ok)

	b := Binding{Key: "k", Gen: 7}
	def := &Image{Format: "default"}
	s.SetBinding(b)
	s.SetPlaceholder(Placeholder{Image: def, Binding: b})

	p, ok := s.Placeholder()
	assert.True(t, ok)
	assert.Same(t, def, p.Image)
	assert.Equal(t, b, s.Owner())

	img := &Image{Format: "png"}
	s.SetImage(img)
	assert.Same(t, img, s.Image())
	_, ok = s.Placeholder()
	assert.False(t, ok, "image replaces placeholder")
	assert.True(t, s.Owner().IsZero())
	assert.Equal(t, b, s.Binding(), "binding is independent of the visual")

	s.SetPlaceholder(Placeholder{})
	assert.Nil(t, s.Image(), "placeholder replaces image")
}
