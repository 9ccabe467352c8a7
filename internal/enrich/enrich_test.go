package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupesmith/dupesmith/internal/model"
)

func makeCandidates(n int) []model.Candidate {
	candidates := make([]model.Candidate, n)
	for i := range candidates {
		candidates[i] = model.Candidate{Group: model.DuplicateGroup{InstanceCount: 2, LineCount: 10}}
	}
	return candidates
}

func TestEnrichAttachesAllFieldsOnSuccess(t *testing.T) {
	o := New(
		func(ctx context.Context, c model.Candidate) (model.TestCoverage, error) {
			return model.TestCoverage{Covered: true, Percentage: 80}, nil
		},
		func(ctx context.Context, c model.Candidate) (model.Impact, error) {
			return model.Impact{FilesAffected: 2}, nil
		},
		func(ctx context.Context, c model.Candidate) (model.Recommendation, error) {
			return model.Recommendation{Summary: "extract it", Confidence: 0.9}, nil
		},
	)

	result, err := o.Enrich(context.Background(), makeCandidates(2), Options{IncludeTestCoverage: true})
	require.NoError(t, err)
	require.Len(t, result, 2)
	for _, c := range result {
		require.NotNil(t, c.Enrichment)
		require.NotNil(t, c.Enrichment.TestCoverage)
		assert.True(t, c.Enrichment.TestCoverage.Covered)
		require.NotNil(t, c.Enrichment.Impact)
		require.NotNil(t, c.Enrichment.Recommendation)
	}
}

func TestEnrichIsolatesOneFailureFromOthers(t *testing.T) {
	o := New(
		nil,
		func(ctx context.Context, c model.Candidate) (model.Impact, error) {
			if c.Group.LineCount == 1 {
				return model.Impact{}, errors.New("boom")
			}
			return model.Impact{FilesAffected: 1}, nil
		},
		nil,
	)

	candidates := []model.Candidate{
		{Group: model.DuplicateGroup{InstanceCount: 2, LineCount: 1}},
		{Group: model.DuplicateGroup{InstanceCount: 2, LineCount: 10}},
	}

	result, err := o.Enrich(context.Background(), candidates, Options{Parallel: true, MaxWorkers: 2})
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.NotNil(t, result[0].Enrichment.Impact.Error)
	assert.Nil(t, result[1].Enrichment.Impact.Error)
	assert.Equal(t, 1, result[1].Enrichment.Impact.FilesAffected)
}

func TestEnrichMarksTimeoutWithoutBlockingOtherCandidates(t *testing.T) {
	o := New(
		nil,
		func(ctx context.Context, c model.Candidate) (model.Impact, error) {
			if c.Group.LineCount == 999 {
				time.Sleep(200 * time.Millisecond)
			}
			return model.Impact{FilesAffected: 1}, nil
		},
		nil,
	)

	candidates := []model.Candidate{
		{Group: model.DuplicateGroup{InstanceCount: 2, LineCount: 999}},
		{Group: model.DuplicateGroup{InstanceCount: 2, LineCount: 1}},
	}

	result, err := o.Enrich(context.Background(), candidates, Options{
		Parallel:            true,
		MaxWorkers:          2,
		TimeoutPerCandidate: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.True(t, result[0].Enrichment.Impact.Error.TimedOut)
	assert.Nil(t, result[1].Enrichment.Impact.Error)
}

func TestEnrichReportsProgressSynchronouslyInOrder(t *testing.T) {
	o := New(nil, nil, nil)

	var mu sync.Mutex
	var stages []Stage
	cb := func(stage Stage, percent int) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, stage)
	}

	_, err := o.Enrich(context.Background(), makeCandidates(1), Options{ProgressCallback: cb})
	require.NoError(t, err)

	require.Equal(t, []Stage{
		StageDetect, StageRank, StageEnrichStart, StageSelectTopN,
		StageRecommendations, StageStatistics, StageComplete,
	}, stages)
}

func TestEnrichTruncatesToMaxCandidates(t *testing.T) {
	o := New(nil, nil, nil)
	result, err := o.Enrich(context.Background(), makeCandidates(5), Options{MaxCandidates: 2})
	require.NoError(t, err)
	assert.Len(t, result, 2)
}
