package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

// Limits bounds batch work.
type Limits struct {
	Concurrency     int
	ItemTimeout     time.Duration
	DefaultArticles int
	MaxArticles     int
}

// ValidatorDeps wires all driven adapters into the validation orchestrator.
type ValidatorDeps struct {
	Articles   ports.ArticleStore
	Hypotheses ports.HypothesisStore
	Results    ports.ResultStore
	Fetcher    ports.ArticleFetcher
	Verdicts   ports.VerdictGenerator
	Discoverer ports.ArticleDiscoverer
	Limits     Limits
	Logger     *slog.Logger
}

// UploadItem is one URL submitted for ingestion, with an optional caller-supplied title.
type UploadItem struct {
	URL   string
	Title string
}

// Validator orchestrates article ingestion, discovery and cached verdicts.
type Validator struct {
	articles   ports.ArticleStore
	hypotheses ports.HypothesisStore
	results    ports.ResultStore
	fetcher    ports.ArticleFetcher
	verdicts   ports.VerdictGenerator
	discoverer ports.ArticleDiscoverer
	limits     Limits
	logger     *slog.Logger
	flight     singleflight.Group
	now        func() time.Time
}

// NewValidator constructs the orchestrator.
func NewValidator(deps ValidatorDeps) *Validator {
	limits := deps.Limits
	if limits.Concurrency < 1 {
		limits.Concurrency = 1
	}
	if limits.MaxArticles < 1 {
		limits.MaxArticles = 50
	}
	if limits.DefaultArticles < 1 || limits.DefaultArticles > limits.MaxArticles {
		limits.DefaultArticles = min(10, limits.MaxArticles)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		articles:   deps.Articles,
		hypotheses: deps.Hypotheses,
		results:    deps.Results,
		fetcher:    deps.Fetcher,
		verdicts:   deps.Verdicts,
		discoverer: deps.Discoverer,
		limits:     limits,
		logger:     logger,
		now:        time.Now,
	}
}

// BatchBudget is the worst-case duration of a batch of items: one item timeout per
// wave of Concurrency items, plus one for the lookup or discovery call that precedes
// the batch. items 0 means the default article amount. Zero when items are unbounded.
func (v *Validator) BatchBudget(items int) time.Duration {
	if v.limits.ItemTimeout <= 0 {
		return 0
	}
	if items <= 0 {
		items = v.limits.DefaultArticles
	}
	waves := (items + v.limits.Concurrency - 1) / v.limits.Concurrency
	return time.Duration(waves+1) * v.limits.ItemTimeout
}

// Validate judges one article against a hypothesis, reusing any stored verdict.
func (v *Validator) Validate(ctx context.Context, hypothesisText, articleURL string) (domain.ValidationResult, error) {
	text, err := hypothesisKey(hypothesisText)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	key, err := domain.NormalizeURL(articleURL)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	article, err := v.ensureArticle(ctx, strings.TrimSpace(articleURL), key, "")
	if err != nil {
		return domain.ValidationResult{}, unavailable(err)
	}

	hypothesis, err := v.registerHypothesis(ctx, text)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	return v.resolveVerdict(ctx, article, hypothesis)
}

// ValidateArticle judges an already stored article, addressed by id.
func (v *Validator) ValidateArticle(ctx context.Context, hypothesisText, articleID string) (domain.ValidationResult, error) {
	text, err := hypothesisKey(hypothesisText)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return domain.ValidationResult{}, domain.Invalid("article id is required")
	}

	article, err := v.articles.FindArticleByID(ctx, articleID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("find article: %w", err)
	}
	if article == nil {
		return domain.ValidationResult{}, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
	}
	if strings.TrimSpace(article.Content) == "" {
		return domain.ValidationResult{}, fmt.Errorf("article %s has no content: %w", articleID, domain.ErrArticleUnavailable)
	}

	hypothesis, err := v.registerHypothesis(ctx, text)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return v.resolveVerdict(ctx, article, hypothesis)
}

// UploadArticles ingests urls. Already stored URLs count as uploaded without a fetch.
func (v *Validator) UploadArticles(ctx context.Context, urls []string) (domain.UploadReport, error) {
	items := make([]UploadItem, len(urls))
	for i, u := range urls {
		items[i] = UploadItem{URL: u}
	}
	return v.UploadItems(ctx, items)
}

// UploadItems is UploadArticles with per-URL title hints.
func (v *Validator) UploadItems(ctx context.Context, items []UploadItem) (domain.UploadReport, error) {
	entries := dedupe(items)

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Err == nil {
			keys = append(keys, e.Key)
		}
	}
	stored, err := v.articles.ExistingArticles(ctx, keys)
	if err != nil {
		return domain.UploadReport{}, fmt.Errorf("load stored articles: %w", err)
	}

	pending := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.Err == nil && !stored[e.Key] {
			pending = append(pending, e)
		}
	}

	outcomes := forEach(ctx, v.limits.Concurrency, v.limits.ItemTimeout, pending,
		func(ctx context.Context, e entry) (struct{}, error) {
			_, err := v.ensureArticle(ctx, e.Raw, e.Key, e.Title)
			return struct{}{}, err
		})

	failed := make(map[string]error, len(pending))
	for i, e := range pending {
		if outcomes[i].err != nil {
			failed[e.Key] = outcomes[i].err
		}
	}

	report := domain.UploadReport{FailedURLs: []string{}}
	for _, e := range entries {
		err := e.Err
		if err == nil {
			err = failed[e.Key]
		}
		if err != nil {
			v.logger.Warn("article upload failed", "url", e.Raw, "error", err)
			report.Failed++
			report.FailedURLs = append(report.FailedURLs, e.Raw)
			continue
		}
		report.Uploaded++
	}

	v.logger.Info("articles uploaded",
		"submitted", len(items),
		"distinct", len(entries),
		"already_stored", len(entries)-len(pending)-countInvalid(entries),
		"uploaded", report.Uploaded,
		"failed", report.Failed,
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("upload articles: %w", err)
	}
	return report, nil
}

// CreateHypothesis discovers up to amount articles for the hypothesis and validates each.
// amount 0 selects the configured default; anything above the maximum is rejected.
func (v *Validator) CreateHypothesis(ctx context.Context, hypothesisText string, amount int) (domain.HypothesisReport, error) {
	if amount == 0 {
		amount = v.limits.DefaultArticles
	}
	if amount < 1 || amount > v.limits.MaxArticles {
		return domain.HypothesisReport{}, domain.Invalid("articles amount must be within 1..%d, got %d", v.limits.MaxArticles, amount)
	}
	text, err := hypothesisKey(hypothesisText)
	if err != nil {
		return domain.HypothesisReport{}, err
	}

	hypothesis, err := v.registerHypothesis(ctx, text)
	if err != nil {
		return domain.HypothesisReport{}, err
	}

	urls, err := v.discoverer.DiscoverArticles(ctx, hypothesis.Text, amount)
	if err != nil {
		return domain.HypothesisReport{}, fmt.Errorf("%w: %w", domain.ErrDiscoveryFailed, err)
	}
	if len(urls) > amount {
		urls = urls[:amount]
	}

	items := make([]UploadItem, len(urls))
	for i, u := range urls {
		items[i] = UploadItem{URL: u}
	}
	entries := dedupe(items)

	outcomes := forEach(ctx, v.limits.Concurrency, v.limits.ItemTimeout, entries,
		func(ctx context.Context, e entry) (domain.ArticleVerdict, error) {
			if e.Err != nil {
				return domain.ArticleVerdict{}, e.Err
			}
			article, err := v.ensureArticle(ctx, e.Raw, e.Key, "")
			if err != nil {
				return domain.ArticleVerdict{}, err
			}
			result, err := v.resolveVerdict(ctx, article, hypothesis)
			if err != nil {
				return domain.ArticleVerdict{}, err
			}
			return domain.ArticleVerdict{ArticleURL: e.Raw, Verdict: result.Verdict}, nil
		})

	report := domain.HypothesisReport{
		HypothesisID: hypothesis.ID,
		Results:      []domain.ArticleVerdict{},
		FailedURLs:   []string{},
	}
	for i, e := range entries {
		if err := outcomes[i].err; err != nil {
			v.logger.Warn("article validation failed", "url", e.Raw, "error", err)
			report.Failed++
			report.FailedURLs = append(report.FailedURLs, e.Raw)
			continue
		}
		report.Results = append(report.Results, outcomes[i].val)
	}

	v.logger.Info("hypothesis validated",
		"hypothesis_id", hypothesis.ID,
		"discovered", len(urls),
		"validated", len(report.Results),
		"failed", report.Failed,
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("create hypothesis: %w", err)
	}
	return report, nil
}

// ensureArticle returns the stored article for key, fetching raw once if absent.
// Fetch failures come back as *domain.FetchError.
func (v *Validator) ensureArticle(ctx context.Context, raw, key, titleHint string) (*domain.Article, error) {
	article, err := v.articles.FindArticle(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	if article != nil {
		return article, nil
	}

	val, err := v.share(ctx, "article:"+key, func(ctx context.Context) (any, error) {
		if existing, err := v.articles.FindArticle(ctx, key); err != nil || existing != nil {
			return existing, err
		}

		parsed, err := v.fetcher.Fetch(ctx, raw)
		if err != nil {
			var fe *domain.FetchError
			if !errors.As(err, &fe) {
				err = &domain.FetchError{URL: raw, Err: err}
			}
			return nil, err
		}
		if strings.TrimSpace(parsed.Content) == "" {
			return nil, &domain.FetchError{URL: raw, Err: errors.New("empty article content")}
		}

		title := parsed.Title
		if title == "" {
			title = titleHint
		}
		if title == "" {
			title = domain.DeriveTitle(parsed.Content)
		}
		stored, err := v.articles.PutArticle(ctx, domain.Article{
			URL:       key,
			Title:     title,
			Content:   parsed.Content,
			FetchedAt: v.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("store article: %w", err)
		}
		v.logger.Debug("article stored", "url", key, "article_id", stored.ID)
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*domain.Article), nil
}

// resolveVerdict returns the stored verdict for the pair or computes, stores and returns one.
// Whatever the store holds after the write is returned, so the first stored verdict always wins.
func (v *Validator) resolveVerdict(ctx context.Context, article *domain.Article, hypothesis *domain.Hypothesis) (domain.ValidationResult, error) {
	cached, err := v.results.FindResult(ctx, article.ID, hypothesis.ID)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("find verdict: %w", err)
	}
	if cached != nil {
		v.logger.Debug("verdict cache hit", "article_id", article.ID, "hypothesis_id", hypothesis.ID)
		return *cached, nil
	}

	val, err := v.share(ctx, "verdict:"+article.ID+":"+hypothesis.ID, func(ctx context.Context) (any, error) {
		if existing, err := v.results.FindResult(ctx, article.ID, hypothesis.ID); err != nil || existing != nil {
			return existing, err
		}

		verdict, err := v.verdicts.GenerateVerdict(ctx, hypothesis.Text, article.Content)
		if err == nil {
			err = verdict.Check()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidationFailed, err)
		}

		stored, err := v.results.PutResult(ctx, domain.ValidationResult{
			ArticleID:    article.ID,
			HypothesisID: hypothesis.ID,
			Verdict:      verdict,
			ComputedAt:   v.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("store verdict: %w", err)
		}
		return stored, nil
	})
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return *val.(*domain.ValidationResult), nil
}

// registerHypothesis returns the stored hypothesis for text, creating it on first use.
func (v *Validator) registerHypothesis(ctx context.Context, text string) (*domain.Hypothesis, error) {
	existing, err := v.hypotheses.FindHypothesis(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("find hypothesis: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	stored, err := v.hypotheses.PutHypothesis(ctx, domain.Hypothesis{Text: text, CreatedAt: v.now()})
	if err != nil {
		return nil, fmt.Errorf("store hypothesis: %w", err)
	}
	return stored, nil
}

const maxShareAttempts = 3

// share collapses concurrent calls for key into one. A caller that joined another
// caller's flight retries when only the leader's context was cancelled.
func (v *Validator) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	for attempt := 1; ; attempt++ {
		led := false
		ch := v.flight.DoChan(key, func() (any, error) {
			led = true
			return fn(ctx)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil && !led && ctx.Err() == nil && isContextErr(res.Err) && attempt < maxShareAttempts {
				continue
			}
			return res.Val, res.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func hypothesisKey(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Invalid("hypothesis is required")
	}
	return text, nil
}

// unavailable maps a single-article fetch failure to ErrArticleUnavailable.
// Store and context errors pass through unchanged.
func unavailable(err error) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fmt.Errorf("%w: %w", domain.ErrArticleUnavailable, err)
	}
	return err
}

func countInvalid(entries []entry) int {
	n := 0
	for _, e := range entries {
		if e.Err != nil {
			n++
		}
	}
	return n
}
