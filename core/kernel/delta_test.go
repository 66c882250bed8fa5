package kernel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/treekernel/core/trees"
)

func mustList(t *testing.T, s string) trees.NodeList {
	t.Helper()
	tree, err := trees.Parse(s)
	require.NoError(t, err)
	list, err := trees.BuildNodeList(tree)
	require.NoError(t, err)
	return list
}

func cloneParams(h Hyperparams) Hyperparams {
	out := h
	out.Lambda = append([]float64(nil), h.Lambda...)
	out.Sigma = append([]float64(nil), h.Sigma...)
	return out
}

func TestCalcKSingleNodePair(t *testing.T) {
	list := mustList(t, "(A a)")
	h := SingleBucket(0.5, 1.0)

	k, dl, ds, err := calcK(list, list, h)
	require.NoError(t, err)

	assert.Equal(t, 0.5, k)
	assert.Equal(t, []float64{1}, dl)
	assert.Equal(t, []float64{0}, ds)
}

func TestCalcKDisjointVocabularies(t *testing.T) {
	a := mustList(t, "(S (A a) (B b))")
	b := mustList(t, "(T (C c) (D d))")
	h := SingleBucket(0.5, 1.0)

	k, dl, ds, err := calcK(a, b, h)
	require.NoError(t, err)

	assert.Equal(t, 0.0, k)
	assert.Equal(t, []float64{0}, dl)
	assert.Equal(t, []float64{0}, ds)
}

func TestCalcKSelfComparison(t *testing.T) {
	list := mustList(t, "(S (A a) (B b))")
	h := SingleBucket(0.5, 1.0)

	k, dl, ds, err := calcK(list, list, h)
	require.NoError(t, err)

	// delta(A,A) = delta(B,B) = lambda; delta(S,S) = lambda*(sigma+lambda)^2.
	assert.InDelta(t, 2.125, k, 1e-12)
	assert.InDelta(t, 5.75, dl[0], 1e-12)
	assert.InDelta(t, 1.5, ds[0], 1e-12)
}

func TestCalcKMatchedThenDiverged(t *testing.T) {
	a := mustList(t, "(S (NP (D the) (N dog)) (VP (V barks)))")
	b := mustList(t, "(S (NP (D the) (N cat)) (VP (V barks)))")
	h := SingleBucket(0.5, 1.0)

	k, _, _, err := calcK(a, b, h)
	require.NoError(t, err)

	// The NP pair matches on production but its N child diverges, so the
	// N factor contributes sigma alone:
	//   delta(D)  = 0.5
	//   delta(V)  = 0.5
	//   delta(VP) = 0.5 * (1 + 0.5)            = 0.75
	//   delta(NP) = 0.5 * (1 + 0.5) * 1        = 0.75
	//   delta(S)  = 0.5 * (1 + 0.75)*(1 + 0.75) = 1.53125
	assert.InDelta(t, 4.03125, k, 1e-12)
}

func TestCalcKPreTerminalAgainstInternalNode(t *testing.T) {
	// (A a) and (A (a x)) share no production: the quoted terminal keeps
	// the pre-terminal out of the internal node's match run, so neither
	// argument order reaches the base case with a leaf-less node.
	pre := mustList(t, "(A a)")
	internal := mustList(t, "(A (a x))")
	h := SingleBucket(0.5, 1.0)

	k1, _, _, err := calcK(pre, internal, h)
	require.NoError(t, err)
	k2, _, _, err := calcK(internal, pre, h)
	require.NoError(t, err)

	assert.Equal(t, 0.0, k1)
	assert.Equal(t, k1, k2)
}

func TestCalcKGradientsFiniteDifference(t *testing.T) {
	a := mustList(t, "(S (NP (D the) (N dog)) (VP (V barks)))")
	b := mustList(t, "(S (NP (D the) (N dog)) (VP (V runs)))")

	h := Hyperparams{
		Lambda:        []float64{0.4, 0.7},
		Sigma:         []float64{0.9, 1.3},
		LambdaBuckets: map[string]int{"S": 1, "NP": 1},
		SigmaBuckets:  map[string]int{"NP": 1},
	}
	require.NoError(t, h.Validate())

	_, dl, ds, err := calcK(a, b, h)
	require.NoError(t, err)

	const eps = 1e-6
	const tol = 1e-5

	for idx := range h.Lambda {
		plus := cloneParams(h)
		plus.Lambda[idx] += eps
		minus := cloneParams(h)
		minus.Lambda[idx] -= eps

		kp, _, _, err := calcK(a, b, plus)
		require.NoError(t, err)
		km, _, _, err := calcK(a, b, minus)
		require.NoError(t, err)

		numeric := (kp - km) / (2 * eps)
		assert.InDelta(t, numeric, dl[idx], tol, "lambda[%d]", idx)
	}

	for idx := range h.Sigma {
		plus := cloneParams(h)
		plus.Sigma[idx] += eps
		minus := cloneParams(h)
		minus.Sigma[idx] -= eps

		kp, _, _, err := calcK(a, b, plus)
		require.NoError(t, err)
		km, _, _, err := calcK(a, b, minus)
		require.NoError(t, err)

		numeric := (kp - km) / (2 * eps)
		assert.InDelta(t, numeric, ds[idx], tol, "sigma[%d]", idx)
	}
}

func TestCalcKStrictPolicyUnmappedSymbol(t *testing.T) {
	list := mustList(t, "(S (A a) (B b))")
	h := Hyperparams{
		Lambda:        []float64{0.5},
		Sigma:         []float64{1.0},
		LambdaBuckets: map[string]int{"S": 0},
		SigmaBuckets:  map[string]int{"S": 0},
		Policy:        BucketPolicyStrict,
	}

	_, _, _, err := calcK(list, list, h)
	require.ErrorIs(t, err, ErrUnmappedSymbol)
	assert.Contains(t, err.Error(), "A")
}

func TestCalcKStrictPolicyChecksBothLists(t *testing.T) {
	a := mustList(t, "(A a)")
	b := mustList(t, "(B b)")
	h := Hyperparams{
		Lambda:        []float64{0.5},
		Sigma:         []float64{1.0},
		LambdaBuckets: map[string]int{"A": 0},
		SigmaBuckets:  map[string]int{"A": 0},
		Policy:        BucketPolicyStrict,
	}

	// The unmapped symbol sits only in the second list and the trees share
	// no productions, so the error must surface without any matched pair.
	_, _, _, err := calcK(a, b, h)
	require.ErrorIs(t, err, ErrUnmappedSymbol)
	assert.Contains(t, err.Error(), "B")
}

func TestCalcKDefaultPolicyFallsBackToBucketZero(t *testing.T) {
	list := mustList(t, "(A a)")
	h := Hyperparams{
		Lambda:        []float64{0.5, 0.9},
		Sigma:         []float64{1.0, 2.0},
		LambdaBuckets: map[string]int{"ZZZ": 1},
		SigmaBuckets:  map[string]int{"ZZZ": 1},
	}

	k, dl, _, err := calcK(list, list, h)
	require.NoError(t, err)
	assert.Equal(t, 0.5, k)
	assert.Equal(t, []float64{1, 0}, dl)
}

func TestCalcKDeepChain(t *testing.T) {
	// A long unary spine: every pair depends on the pair below it, so the
	// whole chain evaluates through the explicit work stack.
	depth := 1000
	var sb strings.Builder
	for i := 0; i < depth; i++ {
		fmt.Fprintf(&sb, "(L%d ", i)
	}
	sb.WriteString("(B b)")
	sb.WriteString(strings.Repeat(")", depth))
	list := mustList(t, sb.String())

	h := SingleBucket(0.5, 1.0)
	k, dl, _, err := calcK(list, list, h)
	require.NoError(t, err)

	// delta climbs the spine as d_0 = lambda, d_h = lambda*(sigma+d_{h-1});
	// with lambda=0.5, sigma=1 it approaches 1 from below.
	expected := 0.0
	d := 0.0
	for i := 0; i <= depth; i++ {
		if i == 0 {
			d = 0.5
		} else {
			d = 0.5 * (1 + d)
		}
		expected += d
	}
	assert.InDelta(t, expected, k, 1e-9)
	assert.Greater(t, dl[0], 0.0)
}

func TestHyperparamsValidate(t *testing.T) {
	cases := []struct {
		name string
		h    Hyperparams
	}{
		{"empty lambda", Hyperparams{Sigma: []float64{1}}},
		{"empty sigma", Hyperparams{Lambda: []float64{0.5}}},
		{"zero sigma", Hyperparams{Lambda: []float64{0.5}, Sigma: []float64{0}}},
		{"negative sigma", Hyperparams{Lambda: []float64{0.5}, Sigma: []float64{-1}}},
		{"zero lambda", Hyperparams{Lambda: []float64{0}, Sigma: []float64{1}}},
		{"bucket out of range", Hyperparams{
			Lambda:        []float64{0.5},
			Sigma:         []float64{1},
			LambdaBuckets: map[string]int{"S": 3},
		}},
		{"negative bucket", Hyperparams{
			Lambda:       []float64{0.5},
			Sigma:        []float64{1},
			SigmaBuckets: map[string]int{"S": -1},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.h.Validate(), ErrInvalidHyperparams)
		})
	}

	assert.NoError(t, SingleBucket(0.5, 1.0).Validate())
}
