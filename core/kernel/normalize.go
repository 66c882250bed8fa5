package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/viterin/vek"
)

// ErrNonPositiveDiagonal reports a self-kernel value that is not strictly
// positive. Normalization divides by sqrt(K(x,x)*K(y,y)); with positive
// lambda buckets the pre-terminal base case alone makes every self-kernel
// positive, so hitting this means the hyperparameters were invalid.
var ErrNonPositiveDiagonal = errors.New("non-positive self-kernel")

// normalizePair rescales a raw kernel value into the cosine-similarity-like
// form K' = K / sqrt(K(x,x)*K(y,y)) and adjusts the gradients to match:
//
//	D' = D/sqrt(norm) - K' * (Dxx*Kyy + Kxx*Dyy) / (2*norm)
//
// dl and ds are updated in place; the normalized kernel value is returned.
func normalizePair(
	k float64, dl, ds []float64,
	kxx, kyy float64,
	dlxx, dlyy, dsxx, dsyy []float64,
) (float64, error) {
	norm := kxx * kyy
	if norm <= 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return 0, fmt.Errorf("%w: K(x,x)=%v K(y,y)=%v", ErrNonPositiveDiagonal, kxx, kyy)
	}

	sqrtNorm := math.Sqrt(norm)
	kn := k / sqrtNorm

	normalizeGrad(dl, dlxx, dlyy, kxx, kyy, norm, sqrtNorm, kn)
	normalizeGrad(ds, dsxx, dsyy, kxx, kyy, norm, sqrtNorm, kn)
	return kn, nil
}

func normalizeGrad(d, dxx, dyy []float64, kxx, kyy, norm, sqrtNorm, kn float64) {
	diff := vek.MulNumber(dxx, kyy)
	vek.Add_Inplace(diff, vek.MulNumber(dyy, kxx))
	vek.DivNumber_Inplace(diff, 2*norm)

	vek.DivNumber_Inplace(d, sqrtNorm)
	vek.MulNumber_Inplace(diff, kn)
	vek.Sub_Inplace(d, diff)
}
