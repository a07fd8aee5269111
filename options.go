package surfmatch

import (
	"log/slog"
	"math"

	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/ppf"
	"github.com/hupe1980/surfmatch/resource"
	"github.com/hupe1980/surfmatch/verify"
	"github.com/hupe1980/surfmatch/voting"
)

// TrainOptions configure Train.
type TrainOptions struct {
	// AngleBins is the number of angle quantization steps over [0, 2pi).
	AngleBins int

	// MaxPairsPerPoint limits the partners hashed per reference point to a
	// seeded random subsample. 0 hashes all pairs.
	MaxPairsPerPoint int

	// Workers bounds the parallelism. 0 means GOMAXPROCS.
	Workers int

	// Seed drives partner subsampling.
	Seed int64

	// Compression is applied when the model is serialized.
	Compression persistence.CompressionType

	Logger           *Logger
	MetricsCollector MetricsCollector
	Resource         *resource.Controller
}

// DefaultTrainOptions returns the options Train uses when none are given.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		AngleBins:        ppf.DefaultAngleBins,
		Compression:      DefaultCompression,
		Logger:           NoopLogger(),
		MetricsCollector: NoopMetricsCollector{},
	}
}

// MatchOptions configure Match.
type MatchOptions struct {
	// Workers bounds the parallelism of voting. 0 means GOMAXPROCS.
	Workers int

	// Seed drives key point selection.
	Seed int64

	// PeakRatio, MaxPeaks and MinVotes form the peak rule: every
	// accumulator cell with at least max(MinVotes, PeakRatio*best) votes
	// yields a candidate, at most MaxPeaks per key point.
	PeakRatio float64
	MaxPeaks  int
	MinVotes  int

	// ClusterDistance and ClusterAngle scale the clustering tolerances by
	// the model sampling distance and the angle step.
	ClusterDistance float64
	ClusterAngle    float64

	// DedupDistance and DedupAngle scale the final duplicate check in the
	// same units.
	DedupDistance float64
	DedupAngle    float64

	// ScoreDistance scales the hit distance of the scorer by the model
	// sampling distance.
	ScoreDistance float64

	// NormalAngle additionally requires hits to agree in normal direction
	// within this many radians. 0 disables the check.
	NormalAngle float64

	// RefineIterations is the number of ICP rounds per verified pose.
	RefineIterations int

	// MaxSceneOverlap drops a result whose explained scene points overlap a
	// better result by at least this ratio. 0 disables the check.
	MaxSceneOverlap float64

	// MaxClusters limits how many clusters are verified. 0 verifies all.
	MaxClusters int

	Logger           *Logger
	MetricsCollector MetricsCollector
	Resource         *resource.Controller
}

// DefaultMatchOptions returns the options Match uses when none are given.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		PeakRatio:        voting.DefaultPeakRatio,
		MaxPeaks:         voting.DefaultMaxPeaks,
		MinVotes:         voting.DefaultMinVotes,
		ClusterDistance:  2,
		ClusterAngle:     2,
		DedupDistance:    1,
		DedupAngle:       1,
		ScoreDistance:    1,
		RefineIterations: verify.DefaultRefineIterations,
		Logger:           NoopLogger(),
		MetricsCollector: NoopMetricsCollector{},
	}
}

// TrainOption configures Train.
type TrainOption interface {
	applyTrain(*TrainOptions)
}

// MatchOption configures Match.
type MatchOption interface {
	applyMatch(*MatchOptions)
}

// Option configures both Train and Match.
type Option interface {
	TrainOption
	MatchOption
}

type trainOption func(*TrainOptions)

func (f trainOption) applyTrain(o *TrainOptions) { f(o) }

type matchOption func(*MatchOptions)

func (f matchOption) applyMatch(o *MatchOptions) { f(o) }

type sharedOption struct {
	train trainOption
	match matchOption
}

func (s sharedOption) applyTrain(o *TrainOptions) { s.train(o) }

func (s sharedOption) applyMatch(o *MatchOptions) { s.match(o) }

// WithLogger sets the logger. nil restores the no-op logger.
//
// Example:
//
//	logger := surfmatch.NewJSONLogger(slog.LevelDebug)
//	model, err := surfmatch.Train(ctx, points, 0.05, surfmatch.WithLogger(logger))
func WithLogger(l *Logger) Option {
	if l == nil {
		l = NoopLogger()
	}
	return sharedOption{
		train: func(o *TrainOptions) { o.Logger = l },
		match: func(o *MatchOptions) { o.Logger = l },
	}
}

// WithLogLevel logs as text to stderr at level.
func WithLogLevel(level slog.Level) Option {
	return WithLogger(NewTextLogger(level))
}

// WithMetricsCollector configures a metrics collector. Pass nil to disable
// metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &surfmatch.BasicMetricsCollector{}
//	model, _ := surfmatch.Train(ctx, points, 0.05, surfmatch.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
//	fmt.Printf("trained %d models\n", stats.TrainCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	if mc == nil {
		mc = NoopMetricsCollector{}
	}
	return sharedOption{
		train: func(o *TrainOptions) { o.MetricsCollector = mc },
		match: func(o *MatchOptions) { o.MetricsCollector = mc },
	}
}

// WithResourceController bounds the workers Train and Match may use and
// accounts the memory of the hash table built by Train.
func WithResourceController(rc *resource.Controller) Option {
	return sharedOption{
		train: func(o *TrainOptions) { o.Resource = rc },
		match: func(o *MatchOptions) { o.Resource = rc },
	}
}

// WithWorkers bounds the parallelism. 0 means GOMAXPROCS. Results do not
// depend on the worker count.
func WithWorkers(n int) Option {
	return sharedOption{
		train: func(o *TrainOptions) { o.Workers = n },
		match: func(o *MatchOptions) { o.Workers = n },
	}
}

// WithSeed seeds partner subsampling in Train and key point selection in
// Match.
func WithSeed(seed int64) Option {
	return sharedOption{
		train: func(o *TrainOptions) { o.Seed = seed },
		match: func(o *MatchOptions) { o.Seed = seed },
	}
}

// WithAngleBins sets the number of angle quantization steps.
func WithAngleBins(n int) TrainOption {
	return trainOption(func(o *TrainOptions) { o.AngleBins = n })
}

// WithMaxPairsPerPoint limits the partners hashed per reference point.
func WithMaxPairsPerPoint(n int) TrainOption {
	return trainOption(func(o *TrainOptions) { o.MaxPairsPerPoint = n })
}

// WithCompression sets the compression of serialized models.
func WithCompression(ct persistence.CompressionType) TrainOption {
	return trainOption(func(o *TrainOptions) { o.Compression = ct })
}

// WithPeakRule sets the accumulator peak rule.
func WithPeakRule(ratio float64, maxPeaks, minVotes int) MatchOption {
	return matchOption(func(o *MatchOptions) {
		o.PeakRatio = ratio
		o.MaxPeaks = maxPeaks
		o.MinVotes = minVotes
	})
}

// WithClusterTolerance sets the clustering tolerances in multiples of the
// model sampling distance and the angle step.
func WithClusterTolerance(distance, angle float64) MatchOption {
	return matchOption(func(o *MatchOptions) {
		o.ClusterDistance = distance
		o.ClusterAngle = angle
	})
}

// WithDedupTolerance sets the duplicate tolerances in multiples of the model
// sampling distance and the angle step.
func WithDedupTolerance(distance, angle float64) MatchOption {
	return matchOption(func(o *MatchOptions) {
		o.DedupDistance = distance
		o.DedupAngle = angle
	})
}

// WithScoreDistance sets the scorer hit distance in multiples of the model
// sampling distance.
func WithScoreDistance(factor float64) MatchOption {
	return matchOption(func(o *MatchOptions) { o.ScoreDistance = factor })
}

// WithNormalAngle requires scored hits to agree in normal direction within
// angle radians.
func WithNormalAngle(angle float64) MatchOption {
	return matchOption(func(o *MatchOptions) { o.NormalAngle = angle })
}

// WithRefineIterations sets the number of ICP rounds. 0 disables refinement.
func WithRefineIterations(n int) MatchOption {
	return matchOption(func(o *MatchOptions) { o.RefineIterations = n })
}

// WithMaxSceneOverlap drops results that mostly explain the same scene
// points as a better result.
func WithMaxSceneOverlap(ratio float64) MatchOption {
	return matchOption(func(o *MatchOptions) { o.MaxSceneOverlap = ratio })
}

// WithMaxClusters limits how many clusters are verified.
func WithMaxClusters(n int) MatchOption {
	return matchOption(func(o *MatchOptions) { o.MaxClusters = n })
}

func applyTrainOptions(opts []TrainOption) TrainOptions {
	o := DefaultTrainOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.applyTrain(&o)
		}
	}
	return o
}

func applyMatchOptions(opts []MatchOption) MatchOptions {
	o := DefaultMatchOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.applyMatch(&o)
		}
	}
	return o
}

func (o MatchOptions) validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"cluster_distance", o.ClusterDistance},
		{"cluster_angle", o.ClusterAngle},
		{"dedup_distance", o.DedupDistance},
		{"dedup_angle", o.DedupAngle},
		{"score_distance", o.ScoreDistance},
	} {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return invalidInput(f.name, "%v must be a positive finite factor", f.value)
		}
	}
	return nil
}
