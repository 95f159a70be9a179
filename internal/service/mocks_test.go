package service

import (
	"context"
	"sync"

	"github-star-rank/internal/domain"

	"github.com/stretchr/testify/mock"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchTrending(ctx context.Context, period domain.Period, language string, limit int) ([]*domain.Candidate, error) {
	args := m.Called(ctx, period, language, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Candidate), args.Error(1)
}

func (m *MockFetcher) FetchRepository(ctx context.Context, owner, name string) (*domain.Candidate, error) {
	args := m.Called(ctx, owner, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Candidate), args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Translate(ctx context.Context, text string) string {
	args := m.Called(ctx, text)
	return args.String(0)
}

func (m *MockEnricher) Summarize(ctx context.Context, c *domain.Candidate, translated string) (string, error) {
	args := m.Called(ctx, c, translated)
	return args.String(0), args.Error(1)
}

func (m *MockEnricher) AssessBusinessValue(ctx context.Context, c *domain.Candidate, translated string) (*domain.BusinessAssessment, error) {
	args := m.Called(ctx, c, translated)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BusinessAssessment), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByURL(ctx context.Context, url string) (*domain.RepositoryRecord, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RepositoryRecord), args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, record *domain.RepositoryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStore) RefreshMetadata(ctx context.Context, c *domain.Candidate) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRun(ctx context.Context, result *domain.CrawlResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// memoryStore 按 canonical URL 存储的内存仓库，用来验证幂等
type memoryStore struct {
	mu      sync.Mutex
	records   map[string]*domain.RepositoryRecord
	upserts   int
	refreshes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.RepositoryRecord)}
}

func (s *memoryStore) FindByURL(_ context.Context, url string) (*domain.RepositoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[url]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) Upsert(_ context.Context, record *domain.RepositoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	cp := *record
	s.records[record.CanonicalURL] = &cp
	return nil
}

func (s *memoryStore) RefreshMetadata(_ context.Context, c *domain.Candidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[c.CanonicalURL()]
	if !ok {
		return false, nil
	}
	s.refreshes++
	if c.DetailLoaded {
		preview := r.PreviewImage
		r.ApplyCandidate(c)
		if c.PreviewImage == "" {
			r.PreviewImage = preview
		}
	}
	return true, nil
}

func (s *memoryStore) get(url string) *domain.RepositoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[url]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// scriptedEnricher 记录调用顺序，按仓库名返回预设分数
type scriptedEnricher struct {
	mu     sync.Mutex
	events []string
	scores map[string]*float64
}

func (e *scriptedEnricher) log(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *scriptedEnricher) Translate(_ context.Context, text string) string {
	e.log("translate:" + text)
	return "译：" + text
}

func (e *scriptedEnricher) Summarize(_ context.Context, c *domain.Candidate, _ string) (string, error) {
	e.log("summarize:" + c.Name)
	return "## " + c.Name, nil
}

func (e *scriptedEnricher) AssessBusinessValue(_ context.Context, c *domain.Candidate, _ string) (*domain.BusinessAssessment, error) {
	e.log("assess:" + c.Name)
	return &domain.BusinessAssessment{OverallScore: e.scores[c.Name], Summary: c.Name}, nil
}

func (e *scriptedEnricher) count(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// blockingEnricher 指定仓库的 Summarize 会阻塞到 release 关闭
type blockingEnricher struct {
	scriptedEnricher
	block   string
	entered chan struct{}
	release chan struct{}
}

func (e *blockingEnricher) Summarize(ctx context.Context, c *domain.Candidate, translated string) (string, error) {
	if c.Name == e.block {
		close(e.entered)
		<-e.release
	}
	return e.scriptedEnricher.Summarize(ctx, c, translated)
}
