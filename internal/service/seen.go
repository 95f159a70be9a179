package service

import "sync"

// SeenSet 进程内已处理过的 canonical URL，清空只会多查几次库
type SeenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{urls: make(map[string]struct{})}
}

func (s *SeenSet) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = struct{}{}
}

func (s *SeenSet) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

func (s *SeenSet) Remove(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.urls, url)
}

func (s *SeenSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make(map[string]struct{})
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}
