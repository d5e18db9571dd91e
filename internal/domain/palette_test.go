package domain

import (
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPalette(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := NewPalette([]string{"#808080", "#FFF7FB", "#023858"})
		require.NoError(t, err)
		assert.Equal(t, Palette{"#808080", "#fff7fb", "#023858"}, p)
		assert.Equal(t, 2, p.Classes())
	})

	t.Run("first color must be gray", func(t *testing.T) {
		_, err := NewPalette([]string{"#ffffff", "#000000"})
		require.ErrorIs(t, err, ErrConfig)
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := NewPalette([]string{"#808080", "blue"})
		require.ErrorIs(t, err, ErrConfig)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := NewPalette([]string{"#808080"})
		require.ErrorIs(t, err, ErrConfig)
	})
}

func TestRampPalette(t *testing.T) {
	p, err := RampPalette("#ffffff", "#000080", 5)
	require.NoError(t, err)
	require.Len(t, p, 6)
	assert.Equal(t, NoDataColor, p[0])

	start, _ := colorful.Hex("#ffffff")
	end, _ := colorful.Hex("#000080")
	first, err := colorful.Hex(p[1])
	require.NoError(t, err)
	last, err := colorful.Hex(p[5])
	require.NoError(t, err)
	assert.Less(t, first.DistanceLab(start), 0.01)
	assert.Less(t, last.DistanceLab(end), 0.01)

	_, err = RampPalette("#fff", "nope", 3)
	require.ErrorIs(t, err, ErrConfig)
	_, err = RampPalette("#fff", "#000", 0)
	require.ErrorIs(t, err, ErrConfig)
}
