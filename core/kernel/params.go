package kernel

import (
	"errors"
	"fmt"

	"github.com/adalundhe/treekernel/core/trees"
)

var (
	// ErrInvalidHyperparams reports a structurally invalid hyperparameter
	// table: empty vectors, non-positive values, or out-of-range bucket
	// indices. These are configuration errors, never runtime conditions.
	ErrInvalidHyperparams = errors.New("invalid hyperparameters")

	// ErrUnmappedSymbol reports a root symbol with no bucket assignment
	// under BucketPolicyStrict.
	ErrUnmappedSymbol = errors.New("root symbol has no bucket mapping")
)

// BucketPolicy decides what happens when a node's root symbol has no entry
// in a bucket map.
type BucketPolicy int

const (
	// BucketPolicyDefault sends unmapped symbols to bucket 0, the shared
	// bucket. This is the default and matches running with no bucket maps
	// at all, where every symbol shares a single lambda and sigma.
	BucketPolicyDefault BucketPolicy = iota

	// BucketPolicyStrict treats an unmapped symbol as a configuration
	// error surfaced before any kernel value is computed.
	BucketPolicyStrict
)

// Hyperparams is the bucketed hyperparameter table for the subset-tree
// kernel. Lambda holds the per-bucket decay weights and Sigma the per-bucket
// weights balancing exact against partial subtree matches. The bucket maps
// assign grammar root symbols to indices into those vectors; lambda and
// sigma bucketing are independent and may use different groupings.
type Hyperparams struct {
	Lambda []float64
	Sigma  []float64

	LambdaBuckets map[string]int
	SigmaBuckets  map[string]int

	Policy BucketPolicy
}

// SingleBucket returns a one-bucket table where every root symbol shares the
// given lambda and sigma.
func SingleBucket(lambda, sigma float64) Hyperparams {
	return Hyperparams{
		Lambda: []float64{lambda},
		Sigma:  []float64{sigma},
	}
}

// NumLambda returns the number of lambda buckets.
func (h Hyperparams) NumLambda() int { return len(h.Lambda) }

// NumSigma returns the number of sigma buckets.
func (h Hyperparams) NumSigma() int { return len(h.Sigma) }

// Validate checks the table. Sigma values must be strictly positive because
// the gradient recursion divides by sigma-derived factors; lambda values
// must be strictly positive so that self-kernels stay positive for
// normalization. Bucket map entries must index into their vectors.
func (h Hyperparams) Validate() error {
	if len(h.Lambda) == 0 {
		return fmt.Errorf("%w: lambda vector is empty", ErrInvalidHyperparams)
	}
	if len(h.Sigma) == 0 {
		return fmt.Errorf("%w: sigma vector is empty", ErrInvalidHyperparams)
	}
	for i, v := range h.Lambda {
		if v <= 0 {
			return fmt.Errorf("%w: lambda[%d] = %v, must be > 0", ErrInvalidHyperparams, i, v)
		}
	}
	for i, v := range h.Sigma {
		if v <= 0 {
			return fmt.Errorf("%w: sigma[%d] = %v, must be > 0", ErrInvalidHyperparams, i, v)
		}
	}
	for sym, idx := range h.LambdaBuckets {
		if idx < 0 || idx >= len(h.Lambda) {
			return fmt.Errorf("%w: lambda bucket for %q is %d, want [0,%d)", ErrInvalidHyperparams, sym, idx, len(h.Lambda))
		}
	}
	for sym, idx := range h.SigmaBuckets {
		if idx < 0 || idx >= len(h.Sigma) {
			return fmt.Errorf("%w: sigma bucket for %q is %d, want [0,%d)", ErrInvalidHyperparams, sym, idx, len(h.Sigma))
		}
	}
	switch h.Policy {
	case BucketPolicyDefault, BucketPolicyStrict:
	default:
		return fmt.Errorf("%w: unknown bucket policy %d", ErrInvalidHyperparams, h.Policy)
	}
	return nil
}

// resolveBuckets maps every node in the list to its bucket index under the
// given map and policy. Resolving up front keeps bucket-policy errors out of
// the delta hot path and out of the parallel phase entirely.
func resolveBuckets(list trees.NodeList, buckets map[string]int, policy BucketPolicy) ([]int, error) {
	out := make([]int, len(list))
	for i := range list {
		sym := list[i].RootSymbol()
		idx, ok := buckets[sym]
		if !ok {
			if policy == BucketPolicyStrict {
				return nil, fmt.Errorf("%w: %q", ErrUnmappedSymbol, sym)
			}
			idx = 0
		}
		out[i] = idx
	}
	return out, nil
}
