package efeature

import(
	"math/bits"
	"sort"

	"github.com/abworrall/stackreg/pkg/emath"
)

// A Match pairs query[Query] with train[Train].
type Match struct {
	Query    int
	Train    int
	Distance int
}

func Hamming(a, b Descriptor) int {
	n := 0
	for i := range a {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}

// BruteForce finds, for every query feature, the nearest train feature
// by Hamming distance. With crossCheck, a match is kept only if the
// query feature is also the nearest one to its train feature. Matches
// further than maxDistance are dropped; maxDistance <= 0 keeps all.
func BruteForce(query, train []Feature, crossCheck bool, maxDistance int) []Match {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	nearest := func(f Feature, set []Feature) (int, int) {
		best, bestDist := -1, descBits+1
		for i := range set {
			if d := Hamming(f.Desc, set[i].Desc); d < bestDist {
				best, bestDist = i, d
			}
		}
		return best, bestDist
	}

	matches := []Match{}
	for qi := range query {
		ti, dist := nearest(query[qi], train)
		if maxDistance > 0 && dist > maxDistance {
			continue
		}
		if crossCheck {
			if back, _ := nearest(train[ti], query); back != qi {
				continue
			}
		}
		matches = append(matches, Match{Query:qi, Train:ti, Distance:dist})
	}

	SortMatches(matches)
	return matches
}

// SortMatches orders by ascending distance, then query index.
func SortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Distance != m[j].Distance {
			return m[i].Distance < m[j].Distance
		}
		return m[i].Query < m[j].Query
	})
}

// How far down the sorted match list PickTriangle looks
const triangleSearchDepth = 64

// PickTriangle returns the best three matches (in sorted order) whose
// points are at least minSep apart and span at least minArea, in both
// images. Collinear picks would leave the affine solve underdetermined.
func PickTriangle(matches []Match, query, train []Feature, minSep, minArea float64) ([3]Match, bool) {
	n := len(matches)
	if n > triangleSearchDepth { n = triangleSearchDepth }

	qp := func(m Match) emath.Point { return query[m.Query].Pos }
	tp := func(m Match) emath.Point { return train[m.Train].Pos }
	apart := func(a, b Match) bool {
		return qp(a).Dist(qp(b)) >= minSep && tp(a).Dist(tp(b)) >= minSep
	}

	for i:=0; i<n; i++ {
		for j:=i+1; j<n; j++ {
			if !apart(matches[i], matches[j]) { continue }
			for k:=j+1; k<n; k++ {
				a, b, c := matches[i], matches[j], matches[k]
				if !apart(a, c) || !apart(b, c) { continue }
				if emath.TriangleArea(qp(a), qp(b), qp(c)) < minArea { continue }
				if emath.TriangleArea(tp(a), tp(b), tp(c)) < minArea { continue }
				return [3]Match{a, b, c}, true
			}
		}
	}
	return [3]Match{}, false
}
