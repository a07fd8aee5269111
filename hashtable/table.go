package hashtable

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/ppf"
)

// ErrTooManyPoints is returned when reference indices would overflow uint32.
var ErrTooManyPoints = errors.New("too many model points")

// Entry is a single hash table value.
type Entry struct {
	Ref   uint32  // model reference point index
	Alpha float32 // alignment angle of the pair
}

// Options control table construction.
type Options struct {
	// MaxPairsPerPoint limits the partners of each reference point to a seeded
	// random subsample. 0 pairs every point with every other point.
	MaxPairsPerPoint int

	// Workers bounds the parallelism. 0 means GOMAXPROCS.
	Workers int

	// Seed drives partner subsampling.
	Seed int64
}

// Stats summarizes a build.
type Stats struct {
	Pairs      int // pairs hashed
	Degenerate int // pairs skipped for coincident points
}

// Table maps packed descriptor keys to ordered entry lists.
type Table struct {
	buckets    map[uint64][]Entry
	numEntries int
}

type pairResult struct {
	keys       []uint64
	entries    []Entry
	degenerate int
}

// Build hashes the ordered pairs of points.
//
// Reference points are processed in parallel and merged in index order, so
// bucket contents do not depend on the worker count.
func Build(ctx context.Context, points *pointcloud.PointSet, params ppf.Params, opts Options) (*Table, Stats, error) {
	if err := params.Validate(); err != nil {
		return nil, Stats{}, err
	}
	n := points.Len()
	if uint64(n) > 1<<32-1 {
		return nil, Stats{}, fmt.Errorf("%w: %d", ErrTooManyPoints, n)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]pairResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = hashReference(points, i, params, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	t := &Table{buckets: make(map[uint64][]Entry)}
	var stats Stats
	for _, r := range results {
		for j, k := range r.keys {
			t.buckets[k] = append(t.buckets[k], r.entries[j])
		}
		t.numEntries += len(r.entries)
		stats.Pairs += len(r.entries)
		stats.Degenerate += r.degenerate
	}
	return t, stats, nil
}

func hashReference(points *pointcloud.PointSet, i int, params ppf.Params, opts Options) pairResult {
	p1 := points.At(i)
	frame := ppf.Frame(p1)

	partners := partnersOf(points.Len(), i, opts)
	r := pairResult{
		keys:    make([]uint64, 0, len(partners)),
		entries: make([]Entry, 0, len(partners)),
	}
	for _, j := range partners {
		f, ok := ppf.ComputeInFrame(frame, p1, points.At(j), params)
		if !ok {
			r.degenerate++
			continue
		}
		r.keys = append(r.keys, f.Key())
		r.entries = append(r.entries, Entry{Ref: uint32(i), Alpha: float32(f.Alpha)})
	}
	return r
}

// partnersOf returns the partner indices of reference point i in ascending
// order.
func partnersOf(n, i int, opts Options) []int {
	k := opts.MaxPairsPerPoint
	if k <= 0 || k >= n-1 {
		out := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				out = append(out, j)
			}
		}
		return out
	}

	// Partial Fisher-Yates over the n-1 other indices.
	rng := rand.New(rand.NewSource(opts.Seed*1_000_003 + int64(i)))
	pool := make([]int, 0, n-1)
	for j := 0; j < n; j++ {
		if j != i {
			pool = append(pool, j)
		}
	}
	for s := 0; s < k; s++ {
		r := s + rng.Intn(len(pool)-s)
		pool[s], pool[r] = pool[r], pool[s]
	}
	out := pool[:k]
	sort.Ints(out)
	return out
}

// FromBuckets rebuilds a table from exported buckets. The map is owned by the
// returned table.
func FromBuckets(buckets map[uint64][]Entry) *Table {
	t := &Table{buckets: buckets}
	for _, b := range buckets {
		t.numEntries += len(b)
	}
	return t
}

// Lookup returns the entries stored under key. The slice must not be
// modified.
func (t *Table) Lookup(key uint64) []Entry {
	return t.buckets[key]
}

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.buckets) }

// NumEntries returns the total number of stored entries.
func (t *Table) NumEntries() int { return t.numEntries }

// Keys returns all keys in ascending order.
func (t *Table) Keys() []uint64 {
	keys := make([]uint64, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// MaxRef returns the largest reference index stored, or -1 for an empty
// table.
func (t *Table) MaxRef() int {
	maxRef := -1
	for _, b := range t.buckets {
		for _, e := range b {
			if int(e.Ref) > maxRef {
				maxRef = int(e.Ref)
			}
		}
	}
	return maxRef
}
