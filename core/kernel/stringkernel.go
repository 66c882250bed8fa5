package kernel

import "gonum.org/v1/gonum/mat"

// StringKernel counts weighted common subsequences between two strings with
// the classic O(n*m) dynamic program. It shares the Gram-assembly shape of
// the tree kernel but has no hyperparameters and no gradients.
type StringKernel struct{}

// Calc computes the kernel value between s1 and s2. Comparison is per rune.
func (StringKernel) Calc(s1, s2 string) float64 {
	r1 := []rune(s1)
	r2 := []rune(s2)
	n := len(r1)
	m := len(r2)

	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
		for j := range dp[i] {
			dp[i][j] = 1
		}
	}

	p := make([]float64, m+1)
	for i := 1; i <= n; i++ {
		last := 0
		p[0] = 0
		for j := 1; j <= m; j++ {
			p[j] = p[last]
			if r2[j-1] == r1[i-1] {
				p[j] = p[last] + dp[i-1][j-1]
				last = j
			}
		}
		for j := 1; j <= m; j++ {
			dp[i][j] = dp[i-1][j] + p[j]
		}
	}
	return dp[n][m]
}

// Gram assembles the symmetric kernel matrix over xs, computing the lower
// triangle and mirroring it.
func (sk StringKernel) Gram(xs []string) *mat.Dense {
	n := len(xs)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := sk.Calc(xs[i], xs[j])
			out.Set(i, j, v)
			out.Set(j, i, v)
		}
	}
	return out
}
