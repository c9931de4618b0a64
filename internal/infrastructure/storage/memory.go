package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

type resultKey struct {
	articleID    string
	hypothesisID string
}

// MemoryStore keeps everything in process memory. Records are lost on restart.
type MemoryStore struct {
	mu             sync.RWMutex
	articlesByURL  map[string]domain.Article
	articleURLByID map[string]string
	hypotheses     map[string]domain.Hypothesis
	results        map[resultKey]domain.ValidationResult
	researches     []domain.Research
	entityTypes    []domain.EntityType
	now            func() time.Time
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store. The entity type catalog starts with the default types.
func NewMemoryStore() *MemoryStore {
	entityTypes := make([]domain.EntityType, len(domain.DefaultEntityTypes))
	for i, name := range domain.DefaultEntityTypes {
		entityTypes[i] = domain.EntityType{ID: int64(i + 1), Name: name}
	}
	return &MemoryStore{
		articlesByURL:  map[string]domain.Article{},
		articleURLByID: map[string]string{},
		hypotheses:     map[string]domain.Hypothesis{},
		results:        map[resultKey]domain.ValidationResult{},
		entityTypes:    entityTypes,
		now:            time.Now,
	}
}

// FindArticle looks an article up by normalized URL.
func (s *MemoryStore) FindArticle(_ context.Context, url string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.articlesByURL[url]; ok {
		return &a, nil
	}
	return nil, nil
}

// FindArticleByID looks an article up by its id.
func (s *MemoryStore) FindArticleByID(_ context.Context, id string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if url, ok := s.articleURLByID[id]; ok {
		a := s.articlesByURL[url]
		return &a, nil
	}
	return nil, nil
}

// ExistingArticles reports which of urls are already stored.
func (s *MemoryStore) ExistingArticles(_ context.Context, urls []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, u := range urls {
		if _, ok := s.articlesByURL[u]; ok {
			out[u] = true
		}
	}
	return out, nil
}

// PutArticle stores the article unless its URL is taken and returns the stored copy.
func (s *MemoryStore) PutArticle(_ context.Context, article domain.Article) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.articlesByURL[article.URL]; ok {
		return &existing, nil
	}
	article = prepareArticle(article, s.now())
	s.articlesByURL[article.URL] = article
	s.articleURLByID[article.ID] = article.URL
	return &article, nil
}

// FindHypothesis looks a hypothesis up by exact text.
func (s *MemoryStore) FindHypothesis(_ context.Context, text string) (*domain.Hypothesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.hypotheses[text]; ok {
		return &h, nil
	}
	return nil, nil
}

// PutHypothesis stores the hypothesis unless its text is taken and returns the stored copy.
func (s *MemoryStore) PutHypothesis(_ context.Context, hypothesis domain.Hypothesis) (*domain.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.hypotheses[hypothesis.Text]; ok {
		return &existing, nil
	}
	hypothesis = prepareHypothesis(hypothesis, s.now())
	s.hypotheses[hypothesis.Text] = hypothesis
	return &hypothesis, nil
}

// FindResult returns the cached verdict for a pair.
func (s *MemoryStore) FindResult(_ context.Context, articleID, hypothesisID string) (*domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.results[resultKey{articleID, hypothesisID}]; ok {
		return &r, nil
	}
	return nil, nil
}

// PutResult stores the verdict unless the pair already has one and returns the stored copy.
func (s *MemoryStore) PutResult(_ context.Context, result domain.ValidationResult) (*domain.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{result.ArticleID, result.HypothesisID}
	if existing, ok := s.results[key]; ok {
		return &existing, nil
	}
	result = prepareResult(result, s.now())
	s.results[key] = result
	return &result, nil
}

// ListResearches returns the researches matching filter.
func (s *MemoryStore) ListResearches(_ context.Context, filter domain.ResearchFilter) ([]domain.Research, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Research{}
	for _, r := range s.researches {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListEntityTypes returns every entity type.
func (s *MemoryStore) ListEntityTypes(context.Context) ([]domain.EntityType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entityTypes), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Migrate is a no-op; the maps are ready on construction.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
