package kernel

import (
	"github.com/viterin/vek"

	"github.com/adalundhe/treekernel/core/trees"
)

// dpTable memoizes delta values and gradients for one pair of node lists.
// It is allocated per calcK invocation, sized to the actual lists, and never
// shared: values are specific to the two lists being compared.
//
// A separate computed flag marks filled cells. A genuine zero contribution
// is therefore distinguishable from an unvisited cell, which a zero-valued
// sentinel could not represent.
type dpTable struct {
	cols     int
	nl, ns   int
	computed []bool
	val      []float64
	dl       []float64 // cell (i,j) owns dl[idx*nl : (idx+1)*nl]
	ds       []float64 // cell (i,j) owns ds[idx*ns : (idx+1)*ns]
}

func newDPTable(rows, cols, nl, ns int) *dpTable {
	cells := rows * cols
	return &dpTable{
		cols:     cols,
		nl:       nl,
		ns:       ns,
		computed: make([]bool, cells),
		val:      make([]float64, cells),
		dl:       make([]float64, cells*nl),
		ds:       make([]float64, cells*ns),
	}
}

func (t *dpTable) cell(p trees.Pair) int {
	return p.I*t.cols + p.J
}

func (t *dpTable) dLambda(idx int) []float64 {
	return t.dl[idx*t.nl : (idx+1)*t.nl]
}

func (t *dpTable) dSigma(idx int) []float64 {
	return t.ds[idx*t.ns : (idx+1)*t.ns]
}

// pairEvaluator computes delta values over one (a, b) comparison. The
// lambda/sigma bucket of a matched pair is resolved from list a alone: equal
// productions imply equal root symbols, so both sides agree.
type pairEvaluator struct {
	a, b     trees.NodeList
	lambda   []float64
	sigma    []float64
	lBuckets []int // per node of a
	sBuckets []int
	tbl      *dpTable
	stack    []trees.Pair
}

// calcK computes the raw kernel value between two node lists together with
// its partial derivatives w.r.t. every lambda and sigma bucket: the sum of
// delta over all production-matched node pairs.
func calcK(a, b trees.NodeList, h Hyperparams) (float64, []float64, []float64, error) {
	nl, ns := h.NumLambda(), h.NumSigma()
	k := 0.0
	dl := make([]float64, nl)
	ds := make([]float64, ns)

	lBuckets, err := resolveBuckets(a, h.LambdaBuckets, h.Policy)
	if err != nil {
		return 0, nil, nil, err
	}
	sBuckets, err := resolveBuckets(a, h.SigmaBuckets, h.Policy)
	if err != nil {
		return 0, nil, nil, err
	}
	// The strict policy covers both lists: an unmapped symbol errors no
	// matter which side its tree lands on, even when nothing matches.
	if h.Policy == BucketPolicyStrict {
		if _, err := resolveBuckets(b, h.LambdaBuckets, h.Policy); err != nil {
			return 0, nil, nil, err
		}
		if _, err := resolveBuckets(b, h.SigmaBuckets, h.Policy); err != nil {
			return 0, nil, nil, err
		}
	}

	pairs := trees.MatchPairs(a, b)
	if len(pairs) == 0 {
		return k, dl, ds, nil
	}

	ev := &pairEvaluator{
		a:        a,
		b:        b,
		lambda:   h.Lambda,
		sigma:    h.Sigma,
		lBuckets: lBuckets,
		sBuckets: sBuckets,
		tbl:      newDPTable(len(a), len(b), nl, ns),
	}

	for _, p := range pairs {
		ev.eval(p)
		idx := ev.tbl.cell(p)
		k += ev.tbl.val[idx]
		vek.Add_Inplace(dl, ev.tbl.dLambda(idx))
		vek.Add_Inplace(ds, ev.tbl.dSigma(idx))
	}
	return k, dl, ds, nil
}

// eval fills the DP cell for pair p and every sub-pair it depends on.
//
// The pair-dependency graph is a DAG (children are strict descendants), so
// an explicit work stack replaces recursion: a pair stays on the stack until
// all of its matching child pairs are computed, then is computed itself.
// Depth of the delta recursion would otherwise equal tree height.
func (ev *pairEvaluator) eval(root trees.Pair) {
	t := ev.tbl
	ev.stack = append(ev.stack[:0], root)

	for len(ev.stack) > 0 {
		p := ev.stack[len(ev.stack)-1]
		idx := t.cell(p)
		if t.computed[idx] {
			ev.stack = ev.stack[:len(ev.stack)-1]
			continue
		}

		n1 := ev.a[p.I]
		n2 := ev.b[p.J]

		// Base case: pre-terminal pair contributes its bucket's lambda.
		// Terminal productions are quoted, so a pre-terminal only ever
		// matches another pre-terminal and n2 is leaf-less too.
		if n1.Children == nil {
			lb := ev.lBuckets[p.I]
			t.val[idx] = ev.lambda[lb]
			t.dLambda(idx)[lb] = 1
			t.computed[idx] = true
			ev.stack = ev.stack[:len(ev.stack)-1]
			continue
		}

		// Equal productions guarantee equal arity. Defer until every
		// matching child pair has been computed.
		pending := false
		for k := range n1.Children {
			c := trees.Pair{I: n1.Children[k], J: n2.Children[k]}
			if ev.a[c.I].Production != ev.b[c.J].Production {
				continue
			}
			if !t.computed[t.cell(c)] {
				ev.stack = append(ev.stack, c)
				pending = true
			}
		}
		if pending {
			continue
		}

		ev.compute(p, idx)
		ev.stack = ev.stack[:len(ev.stack)-1]
	}
}

// compute fills one DP cell whose matching child cells are all computed.
//
//	delta(n1,n2) = lambda_b * prod_k f_k
//	f_k = sigma_b + delta(c1_k, c2_k)  when child productions match
//	f_k = sigma_b                      when they diverge below the label
//
// Gradients follow from the product rule: each factor contributes its own
// derivative divided by itself, then the whole sum is scaled by delta.
func (ev *pairEvaluator) compute(p trees.Pair, idx int) {
	t := ev.tbl
	n1 := ev.a[p.I]
	n2 := ev.b[p.J]

	lb := ev.lBuckets[p.I]
	sb := ev.sBuckets[p.I]
	lam := ev.lambda[lb]
	sig := ev.sigma[sb]

	g := 1.0
	vecL := make([]float64, t.nl)
	vecS := make([]float64, t.ns)

	for k := range n1.Children {
		c1 := n1.Children[k]
		c2 := n2.Children[k]

		if ev.a[c1].Production != ev.b[c2].Production {
			// Matched production here, diverged subtree below.
			g *= sig
			vecS[sb] += 1 / sig
			continue
		}

		cidx := t.cell(trees.Pair{I: c1, J: c2})
		denom := sig + t.val[cidx]
		g *= denom

		for x, v := range t.dLambda(cidx) {
			vecL[x] += v / denom
		}
		for x, v := range t.dSigma(cidx) {
			vecS[x] += v / denom
		}
		vecS[sb] += 1 / denom
	}

	delta := lam * g
	t.val[idx] = delta

	dl := t.dLambda(idx)
	copy(dl, vecL)
	vek.MulNumber_Inplace(dl, delta)
	dl[lb] += g

	ds := t.dSigma(idx)
	copy(ds, vecS)
	vek.MulNumber_Inplace(ds, delta)

	t.computed[idx] = true
}
