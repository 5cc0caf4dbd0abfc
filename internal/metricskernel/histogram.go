package metricskernel

import (
	"math"
	"sort"
)

// HistogramValue is the internal representation shared by both histogram
// representations: a sparse bucketIndex -> count map plus the running sum of
// raw samples. Every accumulation derives bucket boundaries from the
// metric's own configuration, not from what was stored; the stored keys are
// bucket indices, so counts recorded under an earlier range keep the indices
// of that range's edges.
type HistogramValue struct {
	Counts map[int]uint64
	Sum    uint64
}

// Accumulate adds one sample already mapped to bucketIndex.
func (h HistogramValue) Accumulate(bucketIndex int, sample uint64) HistogramValue {
	counts := make(map[int]uint64, len(h.Counts)+1)
	for k, v := range h.Counts {
		counts[k] = v
	}
	counts[bucketIndex]++
	return HistogramValue{Counts: counts, Sum: h.Sum + sample}
}

// ExponentialEdges precomputes strictly non-decreasing bucket edges from
// (min, max, bucketCount) by logarithmic interpolation, rounding each edge
// forward to at least one more than its predecessor so no two edges collide
// even when the log step rounds down to zero near the low end of the range.
func ExponentialEdges(min, max uint64, bucketCount int) []uint64 {
	if bucketCount < 1 {
		bucketCount = 1
	}
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	edges := make([]uint64, 0, bucketCount+1)
	edges = append(edges, 0)
	logMin := math.Log(float64(min))
	logMax := math.Log(float64(max))
	prev := uint64(0)
	for i := 0; i < bucketCount; i++ {
		frac := float64(i) / float64(bucketCount)
		edge := uint64(math.Exp(logMin+(logMax-logMin)*frac) + 0.5)
		if edge <= prev {
			edge = prev + 1
		}
		edges = append(edges, edge)
		prev = edge
	}
	if edges[len(edges)-1] < max {
		edges = append(edges, max)
	}
	return edges
}

// BucketIndexForEdges returns the index of the last edge not greater than
// sample, via binary search over the (strictly monotonic) edges slice.
func BucketIndexForEdges(edges []uint64, sample uint64) int {
	idx := sort.Search(len(edges), func(i int) bool { return edges[i] > sample })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// FunctionalBucketIndex implements the log-linear scheme: 8 linear
// subdivisions per power-of-two octave, giving a relative bucket width of
// 12.5% at the start of an octave down to about 6.7% at its end, without
// precomputing an edge table.
func FunctionalBucketIndex(sample uint64) int {
	const subBucketsPerOctave = 8
	if sample == 0 {
		return 0
	}
	octave := 0
	v := sample
	for v >= 2 {
		v /= 2
		octave++
	}
	octaveBase := uint64(1) << uint(octave)
	nextBase := octaveBase * 2
	sub := 0
	if nextBase > octaveBase {
		step := (nextBase - octaveBase) / subBucketsPerOctave
		if step == 0 {
			step = 1
		}
		sub = int((sample - octaveBase) / step)
		if sub >= subBucketsPerOctave {
			sub = subBucketsPerOctave - 1
		}
	}
	return octave*subBucketsPerOctave + sub
}

// histogramPayload renders the wire shape shared by timing-distribution and
// custom-distribution: sum plus a sparse bucketIndex->count map.
func histogramPayload(internal any) any {
	hv, ok := internal.(HistogramValue)
	if !ok {
		return nil
	}
	values := make(map[string]uint64, len(hv.Counts))
	for idx, count := range hv.Counts {
		values[itoa(idx)] = count
	}
	return map[string]any{
		"sum":    hv.Sum,
		"values": values,
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
