package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeField builds a fully valid field with values from fn.
func makeField(rows, cols int, fn func(r, c int) float64) GridField {
	g := NewGridField(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Values[r*cols+c] = fn(r, c)
		}
	}
	return g
}

func TestCombinedMask(t *testing.T) {
	t.Run("union of invalid regions", func(t *testing.T) {
		a := NewGridField(2, 3)
		b := NewGridField(2, 3)
		a.Mask[0] = true
		b.Mask[0] = true
		b.Mask[4] = true

		combined, err := CombinedMask(a, b)
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, false, false, true, false}, combined)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		a := NewGridField(2, 3)
		b := NewGridField(3, 2)

		_, err := CombinedMask(a, b)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestGridFieldCheckShape(t *testing.T) {
	g := NewGridField(4, 5)
	require.NoError(t, g.CheckShape())

	g.Values = g.Values[:10]
	require.ErrorIs(t, g.CheckShape(), ErrShapeMismatch)

	require.ErrorIs(t, GridField{}.CheckShape(), ErrShapeMismatch)
}

func TestGridFieldClone(t *testing.T) {
	g := makeField(2, 2, func(r, c int) float64 { return float64(r + c) })
	g.Mask[3] = true

	clone := g.Clone()
	clone.Values[0] = 99
	clone.Mask[3] = false

	assert.Equal(t, 0.0, g.At(0, 0))
	assert.False(t, g.Valid(1, 1))
	assert.Equal(t, 1, g.InvalidCount())
}
