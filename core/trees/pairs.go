package trees

// Pair indexes one structurally-comparable node pair: the nodes at position
// I in the first list and J in the second share an identical production.
type Pair struct {
	I int
	J int
}

// MatchPairs enumerates every index pair whose nodes carry the same
// production string, exploiting the sorted order of both lists.
//
// Two cursors advance past non-matching productions; on a match, the run of
// equal productions in each list is expanded into its Cartesian product.
// Runs in O(n1 + n2 + matches). Pairs whose productions differ contribute
// zero to the kernel and are never produced, which is what keeps the kernel
// evaluation near-linear instead of quadratic in tree size.
func MatchPairs(a, b NodeList) []Pair {
	var pairs []Pair

	i1, i2 := 0, 0
	for i1 < len(a) && i2 < len(b) {
		switch {
		case a[i1].Production < b[i2].Production:
			i1++
		case a[i1].Production > b[i2].Production:
			i2++
		default:
			prod := a[i1].Production
			e1 := i1
			for e1 < len(a) && a[e1].Production == prod {
				e1++
			}
			e2 := i2
			for e2 < len(b) && b[e2].Production == prod {
				e2++
			}
			for x := i1; x < e1; x++ {
				for y := i2; y < e2; y++ {
					pairs = append(pairs, Pair{I: x, J: y})
				}
			}
			i1, i2 = e1, e2
		}
	}
	return pairs
}
