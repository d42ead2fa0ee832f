package compute

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

const (
	kmeansRestarts = 10
	kmeansMaxIter  = 100
)

// point is a customer in standardized (recency, frequency, monetary) space.
type point [3]float64

// assignClusters runs seeded k-means++ over the standardized RFM values of
// recs and stores the labels in Record.Cluster. recs must already be in a
// deterministic order. The best of kmeansRestarts runs by inertia wins.
// Fewer than k clusters come back when recs hold fewer distinct points.
func assignClusters(recs []*types.Record, k int, seed uint64) {
	if k < 1 || len(recs) == 0 {
		return
	}
	pts := standardize(recs)
	rng := rand.New(rand.NewPCG(seed, seed))

	var best []int
	bestInertia := math.Inf(1)
	for range kmeansRestarts {
		labels, inertia := kmeans(pts, k, rng)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}

	for i, l := range relabel(pts, best) {
		recs[i].Cluster = l
	}
}

// standardize returns z-scores per feature using the population standard
// deviation. A constant feature maps to 0.
func standardize(recs []*types.Record) []point {
	pts := make([]point, len(recs))
	for i, r := range recs {
		pts[i] = point{float64(r.RecencyDays), float64(r.Frequency), r.MonetaryValue.InexactFloat64()}
	}
	n := float64(len(pts))
	for f := range 3 {
		var mean, ss float64
		for _, p := range pts {
			mean += p[f]
		}
		mean /= n
		for _, p := range pts {
			ss += (p[f] - mean) * (p[f] - mean)
		}
		std := math.Sqrt(ss / n)
		for i := range pts {
			if std == 0 {
				pts[i][f] = 0
			} else {
				pts[i][f] = (pts[i][f] - mean) / std
			}
		}
	}
	return pts
}

// kmeans runs Lloyd's algorithm from a k-means++ start and returns the
// label of every point and the within-cluster sum of squares.
func kmeans(pts []point, k int, rng *rand.Rand) ([]int, float64) {
	centroids := seedCentroids(pts, k, rng)
	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range pts {
			if c := nearest(p, centroids); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]point, len(centroids))
		counts := make([]int, len(centroids))
		for i, p := range pts {
			c := labels[i]
			counts[c]++
			for f := range 3 {
				sums[c][f] += p[f]
			}
		}
		for c := range centroids {
			// An empty cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			for f := range 3 {
				centroids[c][f] = sums[c][f] / float64(counts[c])
			}
		}
	}

	var inertia float64
	for i, p := range pts {
		inertia += dist2(p, centroids[labels[i]])
	}
	return labels, inertia
}

// seedCentroids picks up to k starting centroids with k-means++: each next
// centroid is drawn with probability proportional to its squared distance
// from the closest one already chosen. It stops early once every point
// coincides with a centroid.
func seedCentroids(pts []point, k int, rng *rand.Rand) []point {
	centroids := []point{pts[rng.IntN(len(pts))]}
	d2 := make([]float64, len(pts))
	for i, p := range pts {
		d2[i] = dist2(p, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		pick := -1
		for i, d := range d2 {
			if d == 0 {
				continue
			}
			pick = i
			if target -= d; target < 0 {
				break
			}
		}
		c := pts[pick]
		centroids = append(centroids, c)
		for i, p := range pts {
			d2[i] = min(d2[i], dist2(p, c))
		}
	}
	return centroids
}

// nearest returns the index of the closest centroid; ties go to the lower index.
func nearest(p point, centroids []point) int {
	best, bestD := 0, math.Inf(1)
	for c, q := range centroids {
		if d := dist2(p, q); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func dist2(a, b point) float64 {
	var s float64
	for f := range 3 {
		d := a[f] - b[f]
		s += d * d
	}
	return s
}

// relabel numbers the non-empty clusters 0..m-1 by mean standardized
// monetary value descending, then recency ascending, then first member.
func relabel(pts []point, labels []int) []int {
	type stat struct {
		label    int
		first    int
		n        int
		monetary float64
		recency  float64
	}
	byLabel := make(map[int]*stat)
	for i, l := range labels {
		s, ok := byLabel[l]
		if !ok {
			s = &stat{label: l, first: i}
			byLabel[l] = s
		}
		s.n++
		s.recency += pts[i][0]
		s.monetary += pts[i][2]
	}

	stats := make([]*stat, 0, len(byLabel))
	for _, s := range byLabel {
		stats = append(stats, s)
	}
	slices.SortFunc(stats, func(a, b *stat) int {
		am, bm := a.monetary/float64(a.n), b.monetary/float64(b.n)
		if c := cmp.Compare(bm, am); c != 0 {
			return c
		}
		if c := cmp.Compare(a.recency/float64(a.n), b.recency/float64(b.n)); c != 0 {
			return c
		}
		return cmp.Compare(a.first, b.first)
	})

	remap := make(map[int]int, len(stats))
	for i, s := range stats {
		remap[s.label] = i
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = remap[l]
	}
	return out
}
