package voting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/surfmatch/hashtable"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/ppf"
)

// ErrInvalidConfig is returned for out-of-range voting parameters.
var ErrInvalidConfig = errors.New("invalid voting config")

// Defaults of the peak rule. A cell of a key point's accumulator is a peak
// when it holds at least max(MinVotes, PeakRatio*best) votes; at most
// MaxPeaks peaks are kept per key point.
const (
	// DefaultPeakRatio is the share of the best cell's votes a peak needs.
	DefaultPeakRatio = 0.9
	// DefaultMaxPeaks is the number of peaks kept per key point.
	DefaultMaxPeaks = 3
	// DefaultMinVotes is the absolute vote floor of a peak.
	DefaultMinVotes = 3
)

// Config controls a voting pass.
type Config struct {
	// KeyPointFraction in (0, 1] selects the share of scene points used as
	// reference points.
	KeyPointFraction float64

	// Seed drives key point selection.
	Seed int64

	// Workers bounds the parallelism. 0 means GOMAXPROCS.
	Workers int

	// Radius limits the scene neighbours of a key point. It is normally the
	// model diameter.
	Radius float64

	// PeakRatio in (0, 1] is the share of the best cell's votes a peak needs.
	PeakRatio float64
	// MaxPeaks caps the peaks kept per key point.
	MaxPeaks int
	// MinVotes is the absolute vote floor of a peak.
	MinVotes int
}

// DefaultConfig returns the default peak rule with all key points.
func DefaultConfig(radius float64) Config {
	return Config{
		KeyPointFraction: 1,
		Radius:           radius,
		PeakRatio:        DefaultPeakRatio,
		MaxPeaks:         DefaultMaxPeaks,
		MinVotes:         DefaultMinVotes,
	}
}

func (c Config) validate() error {
	switch {
	case !(c.KeyPointFraction > 0 && c.KeyPointFraction <= 1):
		return fmt.Errorf("%w: key point fraction %v not in (0, 1]", ErrInvalidConfig, c.KeyPointFraction)
	case !(c.Radius > 0):
		return fmt.Errorf("%w: radius %v", ErrInvalidConfig, c.Radius)
	case !(c.PeakRatio > 0 && c.PeakRatio <= 1):
		return fmt.Errorf("%w: peak ratio %v not in (0, 1]", ErrInvalidConfig, c.PeakRatio)
	case c.MaxPeaks < 1:
		return fmt.Errorf("%w: max peaks %d", ErrInvalidConfig, c.MaxPeaks)
	case c.MinVotes < 1:
		return fmt.Errorf("%w: min votes %d", ErrInvalidConfig, c.MinVotes)
	}
	return nil
}

// Candidate is a pose hypothesis from one accumulator peak.
type Candidate struct {
	Pose     pose.Transform
	Votes    int
	ModelRef int
	SceneRef int
	Angle    float64
}

// Stats summarizes a voting pass.
type Stats struct {
	KeyPoints  int
	Pairs      int
	Degenerate int
	Votes      int
	Candidates int
}

func (s *Stats) add(o Stats) {
	s.KeyPoints += o.KeyPoints
	s.Pairs += o.Pairs
	s.Degenerate += o.Degenerate
	s.Votes += o.Votes
	s.Candidates += o.Candidates
}

// Engine votes scene points against a trained model. It is safe for
// concurrent use.
type Engine struct {
	model  *pointcloud.PointSet
	table  *hashtable.Table
	params ppf.Params
	frames []pose.Transform
	pool   sync.Pool
}

// NewEngine prepares the model side of voting.
func NewEngine(model *pointcloud.PointSet, table *hashtable.Table, params ppf.Params) *Engine {
	frames := make([]pose.Transform, model.Len())
	for i := range frames {
		frames[i] = ppf.Frame(model.At(i))
	}
	e := &Engine{model: model, table: table, params: params, frames: frames}
	cells := model.Len() * params.AngleBins
	e.pool.New = func() any { return newAccumulator(cells) }
	return e
}

type slot struct {
	candidates []Candidate
	stats      Stats
}

// Vote runs the voting pass over scene and returns all candidates in key
// point order.
func (e *Engine) Vote(ctx context.Context, scene *pointcloud.PointSet, cfg Config) ([]Candidate, Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, Stats{}, err
	}
	keys := KeyPoints(scene.Len(), cfg.KeyPointFraction, cfg.Seed)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	slots := make([]slot, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, idx := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[k] = e.voteKeyPoint(scene, idx, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var (
		out   []Candidate
		stats Stats
	)
	for _, s := range slots {
		out = append(out, s.candidates...)
		stats.add(s.stats)
	}
	return out, stats, nil
}

func (e *Engine) voteKeyPoint(scene *pointcloud.PointSet, idx int, cfg Config) slot {
	acc := e.pool.Get().(*accumulator)
	defer func() {
		acc.reset()
		e.pool.Put(acc)
	}()

	sr := scene.At(idx)
	frame := ppf.Frame(sr)
	bins := e.params.AngleBins
	step := e.params.AngleStep()

	s := slot{stats: Stats{KeyPoints: 1}}
	for _, j := range scene.Radius(sr.Position, cfg.Radius) {
		if j == idx {
			continue
		}
		f, ok := ppf.ComputeInFrame(frame, sr, scene.At(j), e.params)
		if !ok {
			s.stats.Degenerate++
			continue
		}
		s.stats.Pairs++
		for _, entry := range e.table.Lookup(f.Key()) {
			angle := ppf.Wrap(float64(entry.Alpha) - f.Alpha)
			pos := (angle + math.Pi) / step
			bin := int(math.Floor(pos))
			if bin >= bins {
				bin = bins - 1
			}
			near := bin + 1
			if pos-float64(bin) < 0.5 {
				near = bin - 1
			}
			near = (near + bins) % bins

			base := int(entry.Ref) * bins
			acc.add(base+bin, angle-binCentre(bin, step))
			acc.add(base+near, ppf.Wrap(angle-binCentre(near, step)))
			s.stats.Votes++
		}
	}

	for _, p := range acc.peaks(cfg) {
		ref, bin := p.cell/bins, p.cell%bins
		angle := ppf.Wrap(binCentre(bin, step) + p.offset)
		s.candidates = append(s.candidates, Candidate{
			Pose:     ppf.Align(e.frames[ref], frame, angle),
			Votes:    p.votes,
			ModelRef: ref,
			SceneRef: idx,
			Angle:    angle,
		})
	}
	s.stats.Candidates = len(s.candidates)
	return s
}

func binCentre(bin int, step float64) float64 {
	return -math.Pi + (float64(bin)+0.5)*step
}

// KeyPoints returns ceil(fraction*n) indices out of n, chosen by a seeded
// shuffle and sorted ascending.
func KeyPoints(n int, fraction float64, seed int64) []int {
	count := int(math.Ceil(fraction * float64(n)))
	if count >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := rand.New(rand.NewSource(seed)).Perm(n)[:count]
	sort.Ints(out)
	return out
}
