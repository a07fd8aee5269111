package surfmatch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    matchCounter   prometheus.Counter
//	    matchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordMatch(matches int, duration time.Duration, err error) {
//	    p.matchCounter.Inc()
//	    p.matchHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordTrain is called after each Train call. points is the number of
	// sampled model points.
	RecordTrain(points int, duration time.Duration, err error)

	// RecordMatch is called after each Match call. matches is the number of
	// poses returned.
	RecordMatch(matches int, duration time.Duration, err error)

	// RecordSave is called after a model is serialized.
	RecordSave(bytes int64, duration time.Duration, err error)

	// RecordLoad is called after a model is deserialized.
	RecordLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTrain(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordMatch(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSave(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	TrainCount      atomic.Int64
	TrainErrors     atomic.Int64
	TrainPoints     atomic.Int64
	TrainTotalNanos atomic.Int64
	MatchCount      atomic.Int64
	MatchErrors     atomic.Int64
	MatchResults    atomic.Int64
	MatchTotalNanos atomic.Int64
	SaveCount       atomic.Int64
	SaveErrors      atomic.Int64
	SaveBytes       atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
}

// RecordTrain implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrain(points int, duration time.Duration, err error) {
	b.TrainCount.Add(1)
	b.TrainTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrainErrors.Add(1)
		return
	}
	b.TrainPoints.Add(int64(points))
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(matches int, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MatchErrors.Add(1)
		return
	}
	b.MatchResults.Add(int64(matches))
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(bytes int64, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SaveBytes.Add(bytes)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		TrainCount:    b.TrainCount.Load(),
		TrainErrors:   b.TrainErrors.Load(),
		TrainPoints:   b.TrainPoints.Load(),
		TrainAvgNanos: avgNanos(b.TrainTotalNanos.Load(), b.TrainCount.Load()),
		MatchCount:    b.MatchCount.Load(),
		MatchErrors:   b.MatchErrors.Load(),
		MatchResults:  b.MatchResults.Load(),
		MatchAvgNanos: avgNanos(b.MatchTotalNanos.Load(), b.MatchCount.Load()),
		SaveCount:     b.SaveCount.Load(),
		SaveErrors:    b.SaveErrors.Load(),
		SaveBytes:     b.SaveBytes.Load(),
		LoadCount:     b.LoadCount.Load(),
		LoadErrors:    b.LoadErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	TrainCount    int64
	TrainErrors   int64
	TrainPoints   int64
	TrainAvgNanos int64
	MatchCount    int64
	MatchErrors   int64
	MatchResults  int64
	MatchAvgNanos int64
	SaveCount     int64
	SaveErrors    int64
	SaveBytes     int64
	LoadCount     int64
	LoadErrors    int64
}
