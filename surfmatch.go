package surfmatch

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch/cluster"
	"github.com/hupe1980/surfmatch/hashtable"
	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/ppf"
	"github.com/hupe1980/surfmatch/sampling"
	"github.com/hupe1980/surfmatch/verify"
	"github.com/hupe1980/surfmatch/voting"
)

// ModelParams are the sampling and quantization parameters of a trained
// model.
type ModelParams struct {
	// DistanceStep is both the model sampling distance and the distance
	// quantization step.
	DistanceStep float64

	AngleBins int

	// RelativeSamplingDistance is the fraction of Diameter used at training.
	RelativeSamplingDistance float64

	// Diameter is the bounding box diagonal of the training points.
	Diameter float64
}

// AngleStep returns the angle quantization step.
func (p ModelParams) AngleStep() float64 {
	return p.quantization().AngleStep()
}

func (p ModelParams) quantization() ppf.Params {
	return ppf.Params{DistanceStep: p.DistanceStep, AngleBins: p.AngleBins}
}

// Model is a trained model: the sampled model points and the hash table of
// their point pair features. A Model is immutable after Train or Load and
// safe for concurrent Match calls.
type Model struct {
	id       uuid.UUID
	params   ModelParams
	points   *pointcloud.PointSet
	table    *hashtable.Table
	engine   *voting.Engine
	centroid r3.Vec

	compression persistence.CompressionType
	logger      *Logger
	metrics     MetricsCollector
}

func newModel(id uuid.UUID, params ModelParams, points *pointcloud.PointSet, table *hashtable.Table) *Model {
	return &Model{
		id:          id,
		params:      params,
		points:      points,
		table:       table,
		engine:      voting.NewEngine(points, table, params.quantization()),
		centroid:    points.Centroid(),
		compression: DefaultCompression,
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
	}
}

// ID returns the identifier assigned at training.
func (m *Model) ID() uuid.UUID { return m.id }

// Params returns the model parameters.
func (m *Model) Params() ModelParams { return m.params }

// Points returns the sampled model points.
func (m *Model) Points() *pointcloud.PointSet { return m.points }

// NumKeys returns the number of distinct descriptors in the hash table.
func (m *Model) NumKeys() int { return m.table.Len() }

// NumEntries returns the number of hashed point pairs.
func (m *Model) NumEntries() int { return m.table.NumEntries() }

// Trained reports whether m holds a trained or loaded model.
func (m *Model) Trained() bool { return m != nil && m.table != nil && m.engine != nil }

func (m *Model) log() *Logger {
	if m == nil || m.logger == nil {
		return NoopLogger()
	}
	return modelLogger(m.logger, m)
}

// modelLogger tags base with the id of m when m holds a model.
func modelLogger(base *Logger, m *Model) *Logger {
	if !m.Trained() {
		return base
	}
	return base.WithModel(m.id)
}

func (m *Model) collector() MetricsCollector {
	if m == nil || m.metrics == nil {
		return NoopMetricsCollector{}
	}
	return m.metrics
}

// Train samples points at relativeSamplingDistance times their bounding
// diameter and hashes every ordered pair of sampled points.
//
// Example:
//
//	model, err := surfmatch.Train(ctx, points, 0.05, surfmatch.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
func Train(ctx context.Context, points *pointcloud.PointSet, relativeSamplingDistance float64, opts ...TrainOption) (model *Model, err error) {
	o := applyTrainOptions(opts)
	start := time.Now()
	var stats TrainStats
	defer func() {
		stats.Duration = time.Since(start)
		o.MetricsCollector.RecordTrain(stats.SampledPoints, stats.Duration, err)
		modelLogger(o.Logger, model).LogTrain(ctx, stats, err)
	}()

	if points == nil || points.Len() == 0 {
		return nil, invalidInput("points", "empty point set")
	}
	stats.InputPoints = points.Len()

	diameter := points.Diameter()
	if !(diameter > 0) {
		return nil, invalidInput("points", "all points coincide")
	}
	d, err := sampling.Distance(diameter, relativeSamplingDistance)
	if err != nil {
		return nil, translateError(err, "relative_sampling_distance")
	}
	params := ModelParams{
		DistanceStep:             d,
		AngleBins:                o.AngleBins,
		RelativeSamplingDistance: relativeSamplingDistance,
		Diameter:                 diameter,
	}
	if err := params.quantization().Validate(); err != nil {
		return nil, translateError(err, "angle_bins")
	}
	if o.MaxPairsPerPoint < 0 {
		return nil, invalidInput("max_pairs_per_point", "%d is negative", o.MaxPairsPerPoint)
	}

	sampled, err := sampling.Downsample(points, d)
	if err != nil {
		return nil, translateError(err, "relative_sampling_distance")
	}
	stats.SampledPoints = sampled.Len()

	workers, err := o.Resource.AcquireWorkers(ctx, workerCount(o.Workers))
	if err != nil {
		return nil, err
	}
	defer o.Resource.ReleaseWorkers(workers)

	mem := tableBytes(sampled.Len(), o.MaxPairsPerPoint)
	if err := o.Resource.AcquireMemory(ctx, mem); err != nil {
		return nil, err
	}
	defer o.Resource.ReleaseMemory(mem)

	table, hs, err := hashtable.Build(ctx, sampled, params.quantization(), hashtable.Options{
		MaxPairsPerPoint: o.MaxPairsPerPoint,
		Workers:          workers,
		Seed:             o.Seed,
	})
	if err != nil {
		return nil, translateError(err, "points")
	}
	stats.Pairs, stats.Degenerate, stats.Keys = hs.Pairs, hs.Degenerate, table.Len()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("model id: %w", err)
	}

	return newModel(id, params, sampled, table).withOptions(o), nil
}

// Result is a verified pose of the model in the scene.
type Result struct {
	// Pose maps model coordinates into scene coordinates.
	Pose pose.Transform

	// Score is the fraction of model points explained by the scene.
	Score float64

	// Weight is the vote mass of the pose cluster the result came from.
	Weight float64

	// Refined reports whether ICP refinement improved the pose.
	Refined bool
}

// Matrix returns the pose as a row-major 4x4 homogeneous matrix.
func (r Result) Matrix() [16]float64 { return r.Pose.Matrix() }

// Match finds up to numMatches poses of model in scene, best first.
//
// The scene is sampled at relativeSamplingDistance times the model diameter
// and ceil(keyPointFraction * sampled points) reference points vote. Poses
// scoring below minScore are dropped. An empty scene is invalid input; an
// empty result means no match was found.
//
// Example:
//
//	results, err := surfmatch.Match(ctx, model, scene, 0.05, 0.2, 0.5, 3)
//	for _, r := range results {
//	    fmt.Println(r.Score, r.Pose)
//	}
func Match(ctx context.Context, model *Model, scene *pointcloud.PointSet, relativeSamplingDistance, keyPointFraction, minScore float64, numMatches int, opts ...MatchOption) (results []Result, err error) {
	o := applyMatchOptions(opts)
	start := time.Now()
	var stats MatchStats
	defer func() {
		stats.Duration = time.Since(start)
		stats.Matches = len(results)
		o.MetricsCollector.RecordMatch(len(results), stats.Duration, err)
		modelLogger(o.Logger, model).LogMatch(ctx, stats, err)
	}()

	if !model.Trained() {
		return nil, ErrUntrainedModel
	}
	sceneDistance, err := sampling.Distance(model.params.Diameter, relativeSamplingDistance)
	if err != nil {
		return nil, translateError(err, "relative_sampling_distance")
	}
	switch {
	case !(keyPointFraction > 0 && keyPointFraction <= 1):
		return nil, invalidInput("key_point_fraction", "%v not in (0, 1]", keyPointFraction)
	case !(minScore >= 0 && minScore <= 1):
		return nil, invalidInput("min_score", "%v not in [0, 1]", minScore)
	case numMatches < 1:
		return nil, invalidInput("num_matches", "%d must be positive", numMatches)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	if scene == nil || scene.Len() == 0 {
		return nil, invalidInput("scene", "empty point set")
	}
	if scene.Len() < 2 || model.points.Len() < 2 {
		return []Result{}, nil
	}
	stats.ScenePoints = scene.Len()

	sampled, err := sampling.Downsample(scene, sceneDistance)
	if err != nil {
		return nil, translateError(err, "relative_sampling_distance")
	}
	stats.SampledPoints = sampled.Len()
	if sampled.Len() < 2 {
		return []Result{}, nil
	}

	workers, err := o.Resource.AcquireWorkers(ctx, workerCount(o.Workers))
	if err != nil {
		return nil, err
	}
	defer o.Resource.ReleaseWorkers(workers)

	cands, vs, err := model.engine.Vote(ctx, sampled, voting.Config{
		KeyPointFraction: keyPointFraction,
		Seed:             o.Seed,
		Workers:          workers,
		Radius:           model.params.Diameter,
		PeakRatio:        o.PeakRatio,
		MaxPeaks:         o.MaxPeaks,
		MinVotes:         o.MinVotes,
	})
	if err != nil {
		return nil, translateError(err, "peak_rule")
	}
	stats.KeyPoints, stats.Pairs, stats.Degenerate = vs.KeyPoints, vs.Pairs, vs.Degenerate
	stats.Votes, stats.Candidates = vs.Votes, vs.Candidates

	hyps := make([]cluster.Hypothesis, len(cands))
	for i, c := range cands {
		hyps[i] = cluster.Hypothesis{Pose: c.Pose, Weight: float64(c.Votes)}
	}
	step := model.params.DistanceStep
	angle := model.params.AngleStep()
	clusters, err := cluster.Group(hyps, cluster.Config{
		DistanceTolerance: o.ClusterDistance * step,
		AngleTolerance:    o.ClusterAngle * angle,
		Centre:            model.centroid,
	})
	if err != nil {
		return nil, translateError(err, "cluster_tolerance")
	}
	stats.Clusters = len(clusters)

	verified, vstats, err := verify.Verify(ctx, model.points, sampled, clusters, verify.Config{
		ScoreDistance:    o.ScoreDistance * math.Max(step, sceneDistance),
		NormalAngle:      o.NormalAngle,
		RefineIterations: o.RefineIterations,
		MaxSceneOverlap:  o.MaxSceneOverlap,
		MaxClusters:      o.MaxClusters,
		MinScore:         minScore,
		NumMatches:       numMatches,
		Dedup: cluster.Config{
			DistanceTolerance: o.DedupDistance * step,
			AngleTolerance:    o.DedupAngle * angle,
			Centre:            model.centroid,
		},
	})
	if err != nil {
		return nil, translateError(err, "verification")
	}
	stats.Scored, stats.Refined = vstats.Scored, vstats.Refined

	results = make([]Result, len(verified))
	for i, v := range verified {
		results[i] = Result{Pose: v.Pose, Score: v.Score, Weight: v.Weight, Refined: v.Refined}
	}
	return results, nil
}

// Transform applies t to every point of ps: positions are rotated and
// translated, normals only rotated.
func Transform(t pose.Transform, ps *pointcloud.PointSet) *pointcloud.PointSet {
	return pose.ApplyToPointSet(t, ps)
}

// TransformMatrix applies a row-major 4x4 rigid transform to ps. A matrix
// that is not a rigid transform is rejected with ErrInvalidInput.
func TransformMatrix(m [16]float64, ps *pointcloud.PointSet) (*pointcloud.PointSet, error) {
	t, err := pose.FromMatrix(m)
	if err != nil {
		return nil, &InvalidInputError{Field: "matrix", cause: err}
	}
	return pose.ApplyToPointSet(t, ps), nil
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// tableBytes estimates the peak memory of a hash table build over n points.
func tableBytes(n, maxPairs int) int64 {
	partners := n - 1
	if maxPairs > 0 && maxPairs < partners {
		partners = maxPairs
	}
	if partners < 0 {
		partners = 0
	}
	// key plus entry per pair, once in the per-point results and once in
	// the buckets
	return 2 * int64(n) * int64(partners) * (8 + 8)
}
