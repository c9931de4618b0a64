package ports

import (
	"context"

	"HypothesisValidator/internal/domain"
)

// ArticleStore persists parsed articles keyed by normalized URL.
// Find methods return (nil, nil) on a miss. PutArticle is insert-if-absent and
// returns the stored record, which is the earlier one when the URL already exists.
type ArticleStore interface {
	FindArticle(ctx context.Context, url string) (*domain.Article, error)
	FindArticleByID(ctx context.Context, id string) (*domain.Article, error)
	ExistingArticles(ctx context.Context, urls []string) (map[string]bool, error)
	PutArticle(ctx context.Context, article domain.Article) (*domain.Article, error)
}

// HypothesisStore persists hypotheses keyed by their exact text.
type HypothesisStore interface {
	FindHypothesis(ctx context.Context, text string) (*domain.Hypothesis, error)
	PutHypothesis(ctx context.Context, hypothesis domain.Hypothesis) (*domain.Hypothesis, error)
}

// ResultStore caches verdicts keyed by (article id, hypothesis id).
type ResultStore interface {
	FindResult(ctx context.Context, articleID, hypothesisID string) (*domain.ValidationResult, error)
	PutResult(ctx context.Context, result domain.ValidationResult) (*domain.ValidationResult, error)
}

// CatalogStore reads the research and entity type catalog. Both listings are ordered by id.
type CatalogStore interface {
	ListResearches(ctx context.Context, filter domain.ResearchFilter) ([]domain.Research, error)
	ListEntityTypes(ctx context.Context) ([]domain.EntityType, error)
}

// Store bundles every persistence port together with lifecycle hooks.
type Store interface {
	ArticleStore
	HypothesisStore
	ResultStore
	CatalogStore
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ArticleFetcher downloads a URL and extracts its text. Failures are *domain.FetchError.
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (domain.ParsedArticle, error)
}

// VerdictGenerator asks the LLM to judge an article against a hypothesis.
type VerdictGenerator interface {
	GenerateVerdict(ctx context.Context, hypothesis, articleText string) (domain.Verdict, error)
}

// ArticleDiscoverer asks the LLM for candidate article URLs. Fewer than count is not an error.
type ArticleDiscoverer interface {
	DiscoverArticles(ctx context.Context, hypothesis string, count int) ([]string, error)
}

// LLMGateway is the combined LLM capability set.
type LLMGateway interface {
	VerdictGenerator
	ArticleDiscoverer
}
