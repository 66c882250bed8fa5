// Package kernel implements the subset-tree kernel (SSTK) over labeled
// ordered trees, with analytic partial derivatives w.r.t. its bucketed
// lambda and sigma hyperparameters.
//
// The kernel between two trees is the sum, over all node pairs sharing a
// production, of a recursively defined delta value. Only production-matched
// pairs can contribute, so candidate pairs come from a sorted-merge matcher
// rather than the full cross product. Gradients are computed alongside the
// values in the same dynamic program, which is what lets a downstream GP
// learner fit lambda and sigma by gradient methods.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/adalundhe/treekernel/core/cache"
	"github.com/adalundhe/treekernel/core/trees"
)

// ErrNoInput reports an empty observation set.
var ErrNoInput = errors.New("no input trees")

const (
	defaultLambda = 0.5
	defaultSigma  = 1.0
)

// Options configures a SubsetTreeKernel.
type Options struct {
	// Params is the bucketed hyperparameter table. Zero value means a
	// single shared bucket with lambda 0.5 and sigma 1.0.
	Params Hyperparams

	// Normalize rescales kernel values so every tree's self-similarity
	// is exactly 1.
	Normalize bool

	// Workers bounds the parallel row computation (0 = NumCPU).
	Workers int

	// Cache is the tree cache to use. Nil means a fresh private cache.
	// Injecting one lets callers share node lists across kernels and
	// observe build counts in tests.
	Cache *cache.Cache

	// Logger receives phase-timing debug output. Nil means slog.Default.
	Logger *slog.Logger
}

// SubsetTreeKernel computes SSTK Gram matrices and gradients.
//
// The tree cache persists across calls; DP tables and diagonal values are
// per-call state because they depend on the current hyperparameters.
type SubsetTreeKernel struct {
	id        string
	params    Hyperparams
	normalize bool
	workers   int
	cache     *cache.Cache
	logger    *slog.Logger
}

// New validates the configuration and creates a kernel.
func New(opts Options) (*SubsetTreeKernel, error) {
	params := opts.Params
	if params.Lambda == nil && params.Sigma == nil {
		params = SingleBucket(defaultLambda, defaultSigma)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := opts.Cache
	if c == nil {
		c = cache.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SubsetTreeKernel{
		id:        uuid.NewString(),
		params:    params,
		normalize: opts.Normalize,
		workers:   opts.Workers,
		cache:     c,
		logger:    logger,
	}, nil
}

// Params returns the kernel's hyperparameter table.
func (k *SubsetTreeKernel) Params() Hyperparams { return k.params }

// Cache returns the kernel's tree cache.
func (k *SubsetTreeKernel) Cache() *cache.Cache { return k.cache }

// GramResult holds one K() computation: the kernel matrix and, per lambda
// and sigma bucket, the matrix of partial derivatives. The caller owns it;
// every call produces fresh matrices.
type GramResult struct {
	K       *mat.Dense
	DLambda []*mat.Dense
	DSigma  []*mat.Dense
}

func newGramResult(rows, cols, nl, ns int) *GramResult {
	res := &GramResult{
		K:       mat.NewDense(rows, cols, nil),
		DLambda: make([]*mat.Dense, nl),
		DSigma:  make([]*mat.Dense, ns),
	}
	for b := range res.DLambda {
		res.DLambda[b] = mat.NewDense(rows, cols, nil)
	}
	for b := range res.DSigma {
		res.DSigma[b] = mat.NewDense(rows, cols, nil)
	}
	return res
}

func (r *GramResult) set(i, j int, k float64, dl, ds []float64) {
	r.K.Set(i, j, k)
	for b, v := range dl {
		r.DLambda[b].Set(i, j, v)
	}
	for b, v := range ds {
		r.DSigma[b].Set(i, j, v)
	}
}

// diagTable holds per-tree self-kernel values and gradients for one call.
type diagTable struct {
	k  []float64
	dl [][]float64
	ds [][]float64
}

// K computes the kernel matrix between X and X2, both sequences of tree
// strings in bracketed notation. A nil X2 selects the symmetric Gram case
// over X alone: only the lower triangle is computed, the upper triangle is
// mirrored, and with normalization on the diagonal short-circuits to the
// analytic identity K=1 with zero gradients.
//
// Rows are computed in parallel. Each (i,j) cell is independent once node
// lists and diagonal values exist; workers own disjoint rows (plus their
// mirror cells, which no other worker touches), so results need no locking.
func (k *SubsetTreeKernel) K(ctx context.Context, X, X2 []string) (*GramResult, error) {
	if len(X) == 0 {
		return nil, ErrNoInput
	}
	start := time.Now()

	lists1, err := k.buildLists(X)
	if err != nil {
		return nil, err
	}
	symmetric := X2 == nil
	lists2 := lists1
	if !symmetric {
		if len(X2) == 0 {
			return nil, ErrNoInput
		}
		if lists2, err = k.buildLists(X2); err != nil {
			return nil, err
		}
	}
	k.logger.Debug("tree cache ready",
		"kernel", k.id,
		"cached_trees", k.cache.Len(),
		"elapsed", time.Since(start))

	var diag1, diag2 *diagTable
	if k.normalize {
		if diag1, err = k.diag(ctx, lists1); err != nil {
			return nil, err
		}
		diag2 = diag1
		if !symmetric {
			if diag2, err = k.diag(ctx, lists2); err != nil {
				return nil, err
			}
		}
	}

	res := newGramResult(len(lists1), len(lists2), k.params.NumLambda(), k.params.NumSigma())

	workers := k.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error
	var failed atomic.Bool

	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		failed.Store(true)
	}

	for i := range lists1 {
		if failed.Load() {
			break
		}
		select {
		case <-ctx.Done():
			fail(ctx.Err())
		default:
		}
		if failed.Load() {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			defer func() { <-sem }()

			if err := k.computeRow(i, lists1, lists2, symmetric, diag1, diag2, res); err != nil {
				fail(err)
			}
		}(i)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	k.logger.Debug("gram assembled",
		"kernel", k.id,
		"rows", len(lists1),
		"cols", len(lists2),
		"symmetric", symmetric,
		"normalized", k.normalize,
		"workers", workers,
		"elapsed", time.Since(start))
	return res, nil
}

// Kdiag computes the length-|X| vector of self-kernel values: all ones when
// normalization is on, raw self-kernels otherwise.
func (k *SubsetTreeKernel) Kdiag(ctx context.Context, X []string) (*mat.VecDense, error) {
	if len(X) == 0 {
		return nil, ErrNoInput
	}
	lists, err := k.buildLists(X)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(len(X), nil)
	if k.normalize {
		for i := range X {
			out.SetVec(i, 1)
		}
		return out, nil
	}

	d, err := k.diag(ctx, lists)
	if err != nil {
		return nil, err
	}
	for i, v := range d.k {
		out.SetVec(i, v)
	}
	return out, nil
}

func (k *SubsetTreeKernel) computeRow(
	i int,
	lists1, lists2 []trees.NodeList,
	symmetric bool,
	diag1, diag2 *diagTable,
	res *GramResult,
) error {
	jmax := len(lists2) - 1
	if symmetric {
		jmax = i
	}
	for j := 0; j <= jmax; j++ {
		if symmetric && j == i && k.normalize {
			// Self-similarity normalizes to exactly 1 with zero
			// gradients; the matrices start zeroed.
			res.K.Set(i, i, 1)
			continue
		}

		kv, dl, ds, err := calcK(lists1[i], lists2[j], k.params)
		if err != nil {
			return err
		}
		if k.normalize {
			kv, err = normalizePair(kv, dl, ds,
				diag1.k[i], diag2.k[j],
				diag1.dl[i], diag2.dl[j],
				diag1.ds[i], diag2.ds[j])
			if err != nil {
				return err
			}
		}

		res.set(i, j, kv, dl, ds)
		if symmetric && j != i {
			res.set(j, i, kv, dl, ds)
		}
	}
	return nil
}

// diag precomputes self-kernel values and gradients for every list. Runs
// sequentially before the parallel phase; its results are read-only inputs
// to the row workers.
func (k *SubsetTreeKernel) diag(ctx context.Context, lists []trees.NodeList) (*diagTable, error) {
	start := time.Now()
	d := &diagTable{
		k:  make([]float64, len(lists)),
		dl: make([][]float64, len(lists)),
		ds: make([][]float64, len(lists)),
	}
	for i, list := range lists {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		kv, dl, ds, err := calcK(list, list, k.params)
		if err != nil {
			return nil, err
		}
		if k.normalize && kv <= 0 {
			return nil, fmt.Errorf("%w: tree %d has K(x,x)=%v", ErrNonPositiveDiagonal, i, kv)
		}
		d.k[i] = kv
		d.dl[i] = dl
		d.ds[i] = ds
	}
	k.logger.Debug("diagonal precomputed",
		"kernel", k.id,
		"trees", len(lists),
		"elapsed", time.Since(start))
	return d, nil
}

// buildLists resolves every tree string through the cache, parsing and
// flattening on first sight. This sequential phase happens-before any
// parallel work, so the cache is effectively read-only afterwards.
func (k *SubsetTreeKernel) buildLists(X []string) ([]trees.NodeList, error) {
	lists := make([]trees.NodeList, len(X))
	for i, s := range X {
		list, err := k.cache.GetOrBuild(s, buildNodeList)
		if err != nil {
			return nil, fmt.Errorf("tree %q: %w", s, err)
		}
		lists[i] = list
	}
	return lists, nil
}

func buildNodeList(s string) (trees.NodeList, error) {
	t, err := trees.Parse(s)
	if err != nil {
		return nil, err
	}
	return trees.BuildNodeList(t)
}
