package voting

import (
	"math"
	"sort"
)

// accumulator is a dense (model point x rotation bin) vote grid. Only the
// touched cells are reset between key points.
type accumulator struct {
	votes   []int32
	offsets []float64
	touched []int
}

func newAccumulator(cells int) *accumulator {
	return &accumulator{
		votes:   make([]int32, cells),
		offsets: make([]float64, cells),
	}
}

func (a *accumulator) add(cell int, offset float64) {
	if a.votes[cell] == 0 {
		a.touched = append(a.touched, cell)
	}
	a.votes[cell]++
	a.offsets[cell] += offset
}

func (a *accumulator) reset() {
	for _, c := range a.touched {
		a.votes[c] = 0
		a.offsets[c] = 0
	}
	a.touched = a.touched[:0]
}

type peak struct {
	cell   int
	votes  int
	offset float64 // mean in-cell angle offset from the bin centre
}

func (a *accumulator) peaks(cfg Config) []peak {
	best := int32(0)
	for _, c := range a.touched {
		if a.votes[c] > best {
			best = a.votes[c]
		}
	}
	threshold := math.Max(float64(cfg.MinVotes), cfg.PeakRatio*float64(best))

	var out []peak
	for _, c := range a.touched {
		v := a.votes[c]
		if float64(v) >= threshold {
			out = append(out, peak{cell: c, votes: int(v), offset: a.offsets[c] / float64(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].votes != out[j].votes {
			return out[i].votes > out[j].votes
		}
		return out[i].cell < out[j].cell
	})
	if len(out) > cfg.MaxPeaks {
		out = out[:cfg.MaxPeaks]
	}
	return out
}
