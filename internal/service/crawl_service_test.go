package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github-star-rank/internal/adapter/ai"
	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func score(f float64) *float64 { return &f }

func candidate(owner, name, desc string) *domain.Candidate {
	c := domain.NewCandidate(owner, name)
	c.Description = desc
	c.Language = "Go"
	c.Stars = 1000
	c.Topics = []string{"cli", "tui"}
	c.DetailLoaded = true
	return c
}

func trending() []*domain.Candidate {
	return []*domain.Candidate{
		candidate("charmbracelet", "bubbletea", "A powerful little TUI framework"),
		candidate("junegunn", "fzf", "A command-line fuzzy finder"),
	}
}

func fetcherReturning(candidates []*domain.Candidate) *MockFetcher {
	f := new(MockFetcher)
	f.On("FetchTrending", mock.Anything, domain.PeriodWeekly, "go", 50).Return(candidates, nil)
	return f
}

func newTestService(f *MockFetcher, e port.Enricher, store port.RepositoryStore) (*CrawlService, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewCrawlService(f, e, store, nil, log), hook
}

func TestCrawlService_Run_PersistsNewCandidates(t *testing.T) {
	store := newMemoryStore()
	enricher := &scriptedEnricher{scores: map[string]*float64{"bubbletea": score(7.5), "fzf": score(6)}}
	svc, _ := newTestService(fetcherReturning(trending()), enricher, store)

	result, err := svc.Run(context.Background(), domain.PeriodWeekly, "go", 50)
	require.NoError(t, err)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)
	assert.Equal(t, domain.PeriodWeekly, result.Period)
	assert.Equal(t, domain.CrawlRunStats{Total: 2, NewProcessed: 2}, result.Stats)
	require.Len(t, result.Persisted, 2)
	assert.Equal(t, "译：A powerful little TUI framework", result.Persisted[0].TranslatedDescription)
	assert.Equal(t, "## bubbletea", result.Persisted[0].ProjectSummary)
	assert.Equal(t, 7.5, *result.Persisted[0].OverallScore)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Equal(t, 2, store.len())
	assert.Equal(t, 2, svc.Seen().Len())
}

func TestCrawlService_Run_Idempotent(t *testing.T) {
	store := newMemoryStore()
	enricher := &scriptedEnricher{scores: map[string]*float64{"bubbletea": score(7.5), "fzf": score(6)}}
	svc, _ := newTestService(fetcherReturning(trending()), enricher, store)
	ctx := context.Background()

	_, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
	require.NoError(t, err)

	t.Run("去重集合命中只刷新元数据", func(t *testing.T) {
		result, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
		require.NoError(t, err)
		assert.Equal(t, domain.CrawlRunStats{Total: 2, Skipped: 2, SkippedExisting: 2}, result.Stats)
		assert.Empty(t, result.Persisted)
	})

	t.Run("清空集合后靠查库去重", func(t *testing.T) {
		svc.Seen().Clear()
		result, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Stats.SkippedExisting)
		assert.Equal(t, 2, svc.Seen().Len())
	})

	assert.Equal(t, 2, store.len())
	assert.Equal(t, 2, store.upserts)
	assert.Equal(t, 2, enricher.count("summarize:"), "已存在的项目不应再次调用 AI")
}

func TestCrawlService_Run_DedupKeyIgnoresCase(t *testing.T) {
	store := newMemoryStore()
	enricher := &scriptedEnricher{scores: map[string]*float64{"Hugo": score(8), "hugo": score(8)}}
	f := new(MockFetcher)
	f.On("FetchTrending", mock.Anything, domain.PeriodDaily, "", 10).Return([]*domain.Candidate{
		candidate("GoHugoIO", "Hugo", "fast"),
		candidate("gohugoio", "hugo", "fast"),
	}, nil)
	svc, _ := newTestService(f, enricher, store)

	result, err := svc.Run(context.Background(), domain.PeriodDaily, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.NewProcessed)
	assert.Equal(t, 1, result.Stats.SkippedExisting)
	assert.Equal(t, 1, store.len())
}

func TestCrawlService_Run_DegradedCandidateKeepsMetadata(t *testing.T) {
	store := newMemoryStore()
	enricher := &scriptedEnricher{scores: map[string]*float64{"bubbletea": score(7.5)}}
	full := candidate("charmbracelet", "bubbletea", "A powerful little TUI framework")
	full.PreviewImage = "https://example.com/bubbletea.png"

	f := new(MockFetcher)
	f.On("FetchTrending", mock.Anything, domain.PeriodWeekly, "go", 50).Return([]*domain.Candidate{full}, nil).Once()
	// 之后的运行详情接口失败，只剩 owner/name
	f.On("FetchTrending", mock.Anything, domain.PeriodWeekly, "go", 50).
		Return([]*domain.Candidate{domain.NewCandidate("charmbracelet", "bubbletea")}, nil)
	svc, _ := newTestService(f, enricher, store)
	ctx := context.Background()

	_, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
	require.NoError(t, err)

	assertKept := func(t *testing.T) {
		got := store.get(full.CanonicalURL())
		require.NotNil(t, got)
		assert.Equal(t, 1000, got.Stars)
		assert.Equal(t, "A powerful little TUI framework", got.Description)
		assert.Equal(t, "Go", got.Language)
		assert.Equal(t, []string{"cli", "tui"}, got.Topics)
		assert.Equal(t, "https://example.com/bubbletea.png", got.PreviewImage)
	}

	t.Run("去重集合命中", func(t *testing.T) {
		result, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.SkippedExisting)
		assertKept(t)
	})

	t.Run("查库命中", func(t *testing.T) {
		svc.Seen().Clear()
		result, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.SkippedExisting)
		assertKept(t)
	})

	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, 2, store.refreshes)
}

func TestCrawlService_Run_SequentialOrder(t *testing.T) {
	enricher := &scriptedEnricher{scores: map[string]*float64{"bubbletea": score(5), "fzf": score(5)}}
	svc, _ := newTestService(fetcherReturning(trending()), enricher, newMemoryStore())

	_, err := svc.Run(context.Background(), domain.PeriodWeekly, "go", 50)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"translate:A powerful little TUI framework",
		"summarize:bubbletea",
		"assess:bubbletea",
		"translate:A command-line fuzzy finder",
		"summarize:fzf",
		"assess:fzf",
	}, enricher.events)
}

func TestCrawlService_Run_NextCandidateWaitsForAI(t *testing.T) {
	enricher := &blockingEnricher{
		scriptedEnricher: scriptedEnricher{scores: map[string]*float64{"bubbletea": score(5), "fzf": score(5)}},
		block:            "bubbletea",
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc, _ := newTestService(fetcherReturning(trending()), enricher, newMemoryStore())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), domain.PeriodWeekly, "go", 50)
		done <- err
	}()

	<-enricher.entered
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, enricher.count("translate:A command-line"), "上一个候选的 AI 调用未返回前不能开始下一个")

	close(enricher.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, enricher.count("translate:A command-line"))
	assert.Equal(t, 2, enricher.count("assess:"))
}

func TestCrawlService_Run_CandidateFailures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(e *MockEnricher, s *MockStore)
		expectedLog  string
		noEnrichment bool
	}{
		{
			name: "查库出错不调用 AI",
			setup: func(e *MockEnricher, s *MockStore) {
				s.On("FindByURL", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			expectedLog:  "❌ 查询项目是否存在失败",
			noEnrichment: true,
		},
		{
			name: "介绍生成失败",
			setup: func(e *MockEnricher, s *MockStore) {
				s.On("FindByURL", mock.Anything, mock.Anything).Return(nil, nil)
				e.On("Translate", mock.Anything, mock.Anything).Return("译文")
				e.On("Summarize", mock.Anything, mock.Anything, "译文").Return("", errors.New("rate limited"))
			},
			expectedLog: "❌ AI 增强失败",
		},
		{
			name: "两次都没有总分",
			setup: func(e *MockEnricher, s *MockStore) {
				s.On("FindByURL", mock.Anything, mock.Anything).Return(nil, nil)
				e.On("Translate", mock.Anything, mock.Anything).Return("译文")
				e.On("Summarize", mock.Anything, mock.Anything, "译文").Return("## intro", nil)
				e.On("AssessBusinessValue", mock.Anything, mock.Anything, "译文").Return(nil, ai.ErrAssessmentUnscored)
			},
			expectedLog: "❌ AI 增强失败",
		},
		{
			name: "评估没有总分也不入库",
			setup: func(e *MockEnricher, s *MockStore) {
				s.On("FindByURL", mock.Anything, mock.Anything).Return(nil, nil)
				e.On("Translate", mock.Anything, mock.Anything).Return("译文")
				e.On("Summarize", mock.Anything, mock.Anything, "译文").Return("## intro", nil)
				e.On("AssessBusinessValue", mock.Anything, mock.Anything, "译文").Return(&domain.BusinessAssessment{Summary: "忘了打分"}, nil)
			},
			expectedLog: "❌ 商业分析没有总分，不入库",
		},
		{
			name: "保存失败",
			setup: func(e *MockEnricher, s *MockStore) {
				s.On("FindByURL", mock.Anything, mock.Anything).Return(nil, nil)
				s.On("Upsert", mock.Anything, mock.Anything).Return(common.NewError(common.ErrCodeDatabase, "boom"))
				e.On("Translate", mock.Anything, mock.Anything).Return("译文")
				e.On("Summarize", mock.Anything, mock.Anything, "译文").Return("## intro", nil)
				e.On("AssessBusinessValue", mock.Anything, mock.Anything, "译文").Return(&domain.BusinessAssessment{OverallScore: score(6)}, nil)
			},
			expectedLog: "❌ 保存项目失败",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := new(MockEnricher)
			store := new(MockStore)
			tt.setup(enricher, store)

			one := []*domain.Candidate{candidate("charmbracelet", "bubbletea", "A powerful little TUI framework")}
			svc, hook := newTestService(fetcherReturning(one), enricher, store)

			result, err := svc.Run(context.Background(), domain.PeriodWeekly, "go", 50)
			require.NoError(t, err, "单个候选失败不应中断运行")
			assert.Equal(t, domain.CrawlRunStats{Total: 1, Skipped: 1, Failed: 1}, result.Stats)
			assert.Empty(t, result.Persisted)
			assert.Equal(t, 0, svc.Seen().Len())

			if tt.noEnrichment {
				enricher.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything)
			}
			if tt.name != "保存失败" {
				store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
			}

			var failure *logrus.Entry
			for _, e := range hook.AllEntries() {
				if e.Level == logrus.ErrorLevel {
					failure = e
				}
			}
			require.NotNil(t, failure)
			assert.Equal(t, tt.expectedLog, failure.Message)
			assert.Equal(t, "charmbracelet/bubbletea", failure.Data["repo"])
			assert.Equal(t, "A powerful little TUI framework", failure.Data["description"])
			assert.Equal(t, "Go", failure.Data["language"])
			assert.Equal(t, "cli,tui", failure.Data["topics"])
			assert.NotNil(t, failure.Data[logrus.ErrorKey])
		})
	}
}

func TestCrawlService_Run_SeenButMissingFallsThrough(t *testing.T) {
	store := newMemoryStore()
	enricher := &scriptedEnricher{scores: map[string]*float64{"bubbletea": score(7), "fzf": score(7)}}
	svc, _ := newTestService(fetcherReturning(trending()), enricher, store)
	svc.Seen().Add("https://github.com/charmbracelet/bubbletea")

	result, err := svc.Run(context.Background(), domain.PeriodWeekly, "go", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.NewProcessed)
	assert.Equal(t, 2, store.len())
}

func TestCrawlService_Run_ListingFailure(t *testing.T) {
	f := new(MockFetcher)
	f.On("FetchTrending", mock.Anything, domain.PeriodDaily, "", 50).Return(nil, errors.New("trending page empty"))
	enricher := new(MockEnricher)
	store := new(MockStore)
	svc, _ := newTestService(f, enricher, store)

	result, err := svc.Run(context.Background(), domain.PeriodDaily, "", 50)
	assert.Error(t, err)
	assert.Nil(t, result)
	store.AssertNotCalled(t, "FindByURL", mock.Anything, mock.Anything)
}

func TestCrawlService_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := new(MockStore)
	store.On("FindByURL", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Run(func(mock.Arguments) { cancel() })
	svc, _ := newTestService(fetcherReturning(trending()), new(MockEnricher), store)

	result, err := svc.Run(ctx, domain.PeriodWeekly, "go", 50)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Stats.Failed)
	store.AssertNumberOfCalls(t, "FindByURL", 1)
}

func TestCrawlService_AnalyzeRepository(t *testing.T) {
	ctx := context.Background()
	c := candidate("gohugoio", "hugo", "The world's fastest framework for building websites.")

	t.Run("已存在也重新分析并保留时间段", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, store.Upsert(ctx, &domain.RepositoryRecord{
			CanonicalURL: c.CanonicalURL(), Period: domain.PeriodMonthly, OverallScore: score(3),
		}))
		f := new(MockFetcher)
		f.On("FetchRepository", mock.Anything, "gohugoio", "hugo").Return(c, nil)
		enricher := &scriptedEnricher{scores: map[string]*float64{"hugo": score(8)}}
		svc, _ := newTestService(f, enricher, store)

		record, err := svc.AnalyzeRepository(ctx, "gohugoio", "hugo")
		require.NoError(t, err)
		assert.Equal(t, 8.0, *record.OverallScore)
		assert.Equal(t, domain.PeriodMonthly, record.Period)
		assert.Equal(t, 2, store.upserts)
		assert.True(t, svc.Seen().Has(c.CanonicalURL()))
	})

	t.Run("仓库不存在", func(t *testing.T) {
		f := new(MockFetcher)
		f.On("FetchRepository", mock.Anything, "nobody", "nothing").Return(nil, common.NewError(common.ErrCodeNotFound, "仓库不存在"))
		svc, _ := newTestService(f, new(MockEnricher), new(MockStore))

		_, err := svc.AnalyzeRepository(ctx, "nobody", "nothing")
		assert.Equal(t, common.ErrCodeNotFound, common.CodeOf(err))
	})

	t.Run("没有总分返回错误", func(t *testing.T) {
		f := new(MockFetcher)
		f.On("FetchRepository", mock.Anything, "gohugoio", "hugo").Return(c, nil)
		store := newMemoryStore()
		svc, _ := newTestService(f, &scriptedEnricher{}, store)

		_, err := svc.AnalyzeRepository(ctx, "gohugoio", "hugo")
		assert.Equal(t, common.ErrCodeAIProcessing, common.CodeOf(err))
		assert.Equal(t, 0, store.len())
	})
}
