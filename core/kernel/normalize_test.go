package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePairValue(t *testing.T) {
	dl := []float64{2.0}
	ds := []float64{0.5}

	kn, err := normalizePair(3.0, dl, ds,
		4.0, 9.0,
		[]float64{1.0}, []float64{2.0},
		[]float64{0.2}, []float64{0.4})
	require.NoError(t, err)

	norm := 4.0 * 9.0
	sqrtNorm := math.Sqrt(norm)
	wantK := 3.0 / sqrtNorm
	assert.InDelta(t, wantK, kn, 1e-15)

	diffL := (1.0*9.0 + 4.0*2.0) / (2 * norm)
	assert.InDelta(t, 2.0/sqrtNorm-wantK*diffL, dl[0], 1e-15)

	diffS := (0.2*9.0 + 4.0*0.4) / (2 * norm)
	assert.InDelta(t, 0.5/sqrtNorm-wantK*diffS, ds[0], 1e-15)
}

func TestNormalizePairSelf(t *testing.T) {
	// Normalizing a self-comparison against its own diagonal gives
	// exactly 1 with zero gradients.
	k := 2.125
	dl := []float64{5.75}
	ds := []float64{1.5}

	kn, err := normalizePair(k, dl, ds,
		k, k,
		[]float64{5.75}, []float64{5.75},
		[]float64{1.5}, []float64{1.5})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, kn, 1e-15)
	assert.InDelta(t, 0.0, dl[0], 1e-15)
	assert.InDelta(t, 0.0, ds[0], 1e-15)
}

func TestNormalizePairNonPositiveNorm(t *testing.T) {
	cases := []struct {
		name     string
		kxx, kyy float64
	}{
		{"zero diagonal", 0, 1},
		{"negative diagonal", -1, 1},
		{"both zero", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizePair(1.0, []float64{0}, []float64{0},
				tc.kxx, tc.kyy,
				[]float64{0}, []float64{0},
				[]float64{0}, []float64{0})
			require.ErrorIs(t, err, ErrNonPositiveDiagonal)
		})
	}
}
