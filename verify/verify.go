package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/surfmatch/cluster"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/pose"
)

// ErrInvalidConfig is returned for out-of-range verification parameters.
var ErrInvalidConfig = errors.New("invalid verification config")

// DefaultRefineIterations is the default number of ICP rounds.
const DefaultRefineIterations = 5

// Config controls verification.
type Config struct {
	// ScoreDistance is the largest model-to-scene distance that counts as a
	// hit.
	ScoreDistance float64

	// NormalAngle additionally requires normals to agree within this angle.
	// 0 disables the check.
	NormalAngle float64

	// RefineIterations is the number of ICP rounds per pose. 0 disables
	// refinement.
	RefineIterations int

	// MaxSceneOverlap drops a result whose explained scene points overlap a
	// better result by at least this ratio. 0 disables the check.
	MaxSceneOverlap float64

	// MaxClusters limits how many of the heaviest clusters are scored. 0
	// scores all.
	MaxClusters int

	// MinScore in [0, 1] filters weak results.
	MinScore float64

	// NumMatches caps the number of results.
	NumMatches int

	// Dedup decides when two surviving poses are duplicates.
	Dedup cluster.Config
}

func (c Config) validate() error {
	switch {
	case !(c.ScoreDistance > 0):
		return fmt.Errorf("%w: score distance %v", ErrInvalidConfig, c.ScoreDistance)
	case c.NormalAngle < 0:
		return fmt.Errorf("%w: normal angle %v", ErrInvalidConfig, c.NormalAngle)
	case c.RefineIterations < 0:
		return fmt.Errorf("%w: refine iterations %d", ErrInvalidConfig, c.RefineIterations)
	case c.MaxSceneOverlap < 0 || c.MaxSceneOverlap > 1:
		return fmt.Errorf("%w: max scene overlap %v", ErrInvalidConfig, c.MaxSceneOverlap)
	case c.MaxClusters < 0:
		return fmt.Errorf("%w: max clusters %d", ErrInvalidConfig, c.MaxClusters)
	case !(c.MinScore >= 0 && c.MinScore <= 1):
		return fmt.Errorf("%w: min score %v not in [0, 1]", ErrInvalidConfig, c.MinScore)
	case c.NumMatches < 1:
		return fmt.Errorf("%w: num matches %d", ErrInvalidConfig, c.NumMatches)
	}
	return c.Dedup.Validate()
}

// Result is a verified pose.
type Result struct {
	Pose      pose.Transform
	Score     float64
	Weight    float64 // weight of the originating cluster
	Refined   bool
	Explained *roaring.Bitmap
}

// Stats summarizes a verification pass.
type Stats struct {
	Scored     int
	Refined    int
	BelowScore int
	Duplicates int
	Overlaps   int
}

// Verify scores the heaviest clusters, filters, ranks, removes duplicates and
// truncates the result to cfg.NumMatches.
func Verify(ctx context.Context, model, scene *pointcloud.PointSet, clusters []cluster.Cluster, cfg Config) ([]Result, Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, Stats{}, err
	}
	if cfg.MaxClusters > 0 && len(clusters) > cfg.MaxClusters {
		clusters = clusters[:cfg.MaxClusters]
	}

	scorer := NewScorer(model, scene, cfg.ScoreDistance, cfg.NormalAngle)
	var (
		stats   Stats
		results []Result
	)
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}
		r := Result{Pose: c.Pose, Weight: c.Weight}
		r.Score, r.Explained = scorer.Score(c.Pose)
		if cfg.RefineIterations > 0 {
			refined := scorer.Refine(c.Pose, cfg.RefineIterations, 2*cfg.ScoreDistance)
			if score, explained := scorer.Score(refined); score >= r.Score {
				r.Pose, r.Score, r.Explained, r.Refined = refined, score, explained, true
				stats.Refined++
			}
		}
		stats.Scored++
		if r.Score < cfg.MinScore {
			stats.BelowScore++
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Weight > results[j].Weight
	})

	kept := results[:0]
	for _, r := range results {
		if len(kept) == cfg.NumMatches {
			break
		}
		switch {
		case duplicates(kept, r, cfg.Dedup):
			stats.Duplicates++
		case cfg.MaxSceneOverlap > 0 && overlaps(kept, r, cfg.MaxSceneOverlap):
			stats.Overlaps++
		default:
			kept = append(kept, r)
		}
	}
	return kept, stats, nil
}

func duplicates(kept []Result, r Result, cfg cluster.Config) bool {
	for _, k := range kept {
		if cfg.Close(k.Pose, r.Pose) {
			return true
		}
	}
	return false
}

func overlaps(kept []Result, r Result, ratio float64) bool {
	n := r.Explained.GetCardinality()
	if n == 0 {
		return false
	}
	for _, k := range kept {
		if float64(r.Explained.AndCardinality(k.Explained))/float64(n) >= ratio {
			return true
		}
	}
	return false
}
