// Package enrich implements the enrichment orchestrator (C7): a staged,
// optionally-parallel pipeline that attaches test-coverage, impact, and
// recommendation data onto ranked candidates, isolating per-candidate
// failures from one another.
package enrich

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dupesmith/dupesmith/internal/model"
)

const (
	defaultMaxWorkers = 4
	maxMaxWorkers     = 16

	defaultTimeoutPerCandidate = 30 * time.Second
	maxTimeoutPerCandidate     = 300 * time.Second
)

// Stage names the state-machine boundaries reported via ProgressCallback,
// matching spec's documented progress weights.
type Stage string

const (
	StageDetect             Stage = "detect"
	StageRank               Stage = "rank"
	StageEnrichStart        Stage = "enrich_start"
	StageSelectTopN         Stage = "select_top_n"
	StageTestCoverage       Stage = "test_coverage"
	StageTestCoverageDone   Stage = "test_coverage_done"
	StageRecommendations    Stage = "recommendations"
	StageStatistics         Stage = "statistics"
	StageComplete           Stage = "complete"
)

var stageProgress = map[Stage]int{
	StageDetect:           0,
	StageRank:             25,
	StageEnrichStart:      40,
	StageSelectTopN:       50,
	StageTestCoverage:     60,
	StageTestCoverageDone: 75,
	StageRecommendations:  85,
	StageStatistics:       90,
	StageComplete:         100,
}

// TestCoverageFunc computes test-coverage data for one candidate.
type TestCoverageFunc func(ctx context.Context, c model.Candidate) (model.TestCoverage, error)

// ImpactFunc computes impact-analysis data for one candidate.
type ImpactFunc func(ctx context.Context, c model.Candidate) (model.Impact, error)

// RecommendationFunc computes a human-facing recommendation for one
// candidate.
type RecommendationFunc func(ctx context.Context, c model.Candidate) (model.Recommendation, error)

// Options configures one Enrich call.
type Options struct {
	Parallel             bool
	MaxWorkers           int
	TimeoutPerCandidate  time.Duration
	IncludeTestCoverage  bool
	MaxCandidates        int
	ProgressCallback     func(stage Stage, percent int)
}

func (o Options) normalized() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = defaultMaxWorkers
	}
	if o.MaxWorkers > maxMaxWorkers {
		o.MaxWorkers = maxMaxWorkers
	}
	if o.TimeoutPerCandidate <= 0 {
		o.TimeoutPerCandidate = defaultTimeoutPerCandidate
	}
	if o.TimeoutPerCandidate > maxTimeoutPerCandidate {
		o.TimeoutPerCandidate = maxTimeoutPerCandidate
	}
	return o
}

// Orchestrator enriches ranked candidates using pluggable analyzer funcs,
// so the core pipeline stays decoupled from how coverage/impact/
// recommendation data is actually computed.
type Orchestrator struct {
	TestCoverage   TestCoverageFunc
	Impact         ImpactFunc
	Recommendation RecommendationFunc
}

// New returns an Orchestrator wired to the given analyzer funcs. Any may be
// nil, in which case that enrichment field is always left absent.
func New(testCoverage TestCoverageFunc, impact ImpactFunc, recommendation RecommendationFunc) *Orchestrator {
	return &Orchestrator{TestCoverage: testCoverage, Impact: impact, Recommendation: recommendation}
}

// Enrich runs the enrichment state machine over ranked candidates,
// reporting progress synchronously from the calling goroutine at each
// stage boundary. A panicking ProgressCallback propagates to the caller and
// aborts the pipeline, per contract.
func (o *Orchestrator) Enrich(ctx context.Context, ranked []model.Candidate, opts Options) ([]model.Candidate, error) {
	opts = opts.normalized()
	report := func(stage Stage) {
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(stage, stageProgress[stage])
		}
	}

	report(StageDetect)
	report(StageRank)
	report(StageEnrichStart)

	candidates := ranked
	if opts.MaxCandidates > 0 && opts.MaxCandidates < len(candidates) {
		candidates = candidates[:opts.MaxCandidates]
	}
	report(StageSelectTopN)

	if opts.IncludeTestCoverage {
		report(StageTestCoverage)
	}

	result := make([]model.Candidate, len(candidates))
	copy(result, candidates)

	if opts.Parallel && len(result) > 1 {
		o.enrichParallel(ctx, result, opts)
	} else {
		for i := range result {
			o.enrichOne(ctx, &result[i], opts)
		}
	}

	if opts.IncludeTestCoverage {
		report(StageTestCoverageDone)
	}
	report(StageRecommendations)
	report(StageStatistics)
	report(StageComplete)

	return result, nil
}

// enrichParallel submits every candidate to a bounded worker pool. Workers
// never affect one another: a timeout or failure for one candidate is
// recorded on that candidate alone, and every worker's result (even ones
// that finish after an earlier failure) is collected before returning.
func (o *Orchestrator) enrichParallel(ctx context.Context, candidates []model.Candidate, opts Options) {
	sem := semaphore.NewWeighted(int64(opts.MaxWorkers))

	results := make(chan int, len(candidates))
	for i := range candidates {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func() {
			defer sem.Release(1)
			o.enrichOne(ctx, &candidates[i], opts)
			results <- i
		}()
	}
	for range candidates {
		<-results
	}
}

func (o *Orchestrator) enrichOne(ctx context.Context, c *model.Candidate, opts Options) {
	if c.Enrichment == nil {
		c.Enrichment = &model.Enrichment{}
	}

	taskCtx, cancel := context.WithTimeout(ctx, opts.TimeoutPerCandidate)
	defer cancel()

	if opts.IncludeTestCoverage && o.TestCoverage != nil {
		c.Enrichment.TestCoverage = runWithTimeout(taskCtx, opts.TimeoutPerCandidate, o.TestCoverage, *c)
	}
	if o.Impact != nil {
		c.Enrichment.Impact = runImpactWithTimeout(taskCtx, opts.TimeoutPerCandidate, o.Impact, *c)
	}
	if o.Recommendation != nil {
		c.Enrichment.Recommendation = runRecommendationWithTimeout(taskCtx, opts.TimeoutPerCandidate, o.Recommendation, *c)
	}
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn TestCoverageFunc, c model.Candidate) *model.TestCoverage {
	type outcome struct {
		val model.TestCoverage
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx, c)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return &model.TestCoverage{Error: &model.FieldError{Message: o.err.Error()}}
		}
		return &o.val
	case <-time.After(timeout):
		return &model.TestCoverage{Error: &model.FieldError{Message: "timed out", Timeout: timeout, TimedOut: true}}
	}
}

func runImpactWithTimeout(ctx context.Context, timeout time.Duration, fn ImpactFunc, c model.Candidate) *model.Impact {
	type outcome struct {
		val model.Impact
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx, c)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return &model.Impact{Error: &model.FieldError{Message: o.err.Error()}}
		}
		return &o.val
	case <-time.After(timeout):
		return &model.Impact{Error: &model.FieldError{Message: "timed out", Timeout: timeout, TimedOut: true}}
	}
}

func runRecommendationWithTimeout(ctx context.Context, timeout time.Duration, fn RecommendationFunc, c model.Candidate) *model.Recommendation {
	type outcome struct {
		val model.Recommendation
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx, c)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return &model.Recommendation{Error: &model.FieldError{Message: o.err.Error()}}
		}
		return &o.val
	case <-time.After(timeout):
		return &model.Recommendation{Error: &model.FieldError{Message: "timed out", Timeout: timeout, TimedOut: true}}
	}
}
