package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore is the embedded single-file backend for local runs.
type SQLiteStore struct {
	db     *sql.DB
	q      queries
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:     db,
		q:      newQueries(sq.Question, func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) }),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

// FindArticle looks an article up by normalized URL.
func (s *SQLiteStore) FindArticle(ctx context.Context, url string) (*domain.Article, error) {
	return s.findArticle(ctx, sq.Eq{"url": url})
}

// FindArticleByID looks an article up by its id.
func (s *SQLiteStore) FindArticleByID(ctx context.Context, id string) (*domain.Article, error) {
	return s.findArticle(ctx, sq.Eq{"id": id})
}

func (s *SQLiteStore) findArticle(ctx context.Context, where sq.Eq) (*domain.Article, error) {
	query, args, err := s.q.selectArticle(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	var (
		a       domain.Article
		fetched string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.URL, &a.Title, &a.Content, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}
	if a.FetchedAt, err = parseTime(fetched); err != nil {
		return nil, err
	}
	return &a, nil
}

// ExistingArticles reports which of urls are already stored.
func (s *SQLiteStore) ExistingArticles(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	query, args, err := s.q.selectExistingURLs(urls).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// PutArticle inserts the article unless its URL is taken and returns the stored row.
func (s *SQLiteStore) PutArticle(ctx context.Context, article domain.Article) (*domain.Article, error) {
	article = prepareArticle(article, s.now())
	if err := s.exec(ctx, s.q.insertArticle(article)); err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}
	stored, err := s.FindArticle(ctx, article.URL)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("article %s vanished after insert", article.URL)
	}
	return stored, nil
}

// FindHypothesis looks a hypothesis up by exact text.
func (s *SQLiteStore) FindHypothesis(ctx context.Context, text string) (*domain.Hypothesis, error) {
	query, args, err := s.q.selectHypothesis(text).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hypothesis query: %w", err)
	}

	var (
		h       domain.Hypothesis
		created string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&h.ID, &h.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hypothesis: %w", err)
	}
	if h.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &h, nil
}

// PutHypothesis inserts the hypothesis unless its text is taken and returns the stored row.
func (s *SQLiteStore) PutHypothesis(ctx context.Context, hypothesis domain.Hypothesis) (*domain.Hypothesis, error) {
	hypothesis = prepareHypothesis(hypothesis, s.now())
	if err := s.exec(ctx, s.q.insertHypothesis(hypothesis)); err != nil {
		return nil, fmt.Errorf("insert hypothesis: %w", err)
	}
	stored, err := s.FindHypothesis(ctx, hypothesis.Text)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("hypothesis vanished after insert")
	}
	return stored, nil
}

// FindResult returns the cached verdict for a pair.
func (s *SQLiteStore) FindResult(ctx context.Context, articleID, hypothesisID string) (*domain.ValidationResult, error) {
	query, args, err := s.q.selectResult(articleID, hypothesisID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build result query: %w", err)
	}

	var (
		r        domain.ValidationResult
		computed string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&r.ArticleID, &r.HypothesisID, &r.Verdict.Relevancy, &r.Verdict.KeyTake, &r.Verdict.Validity, &computed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}
	if r.ComputedAt, err = parseTime(computed); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutResult inserts the verdict unless the pair already has one and returns the stored row.
func (s *SQLiteStore) PutResult(ctx context.Context, result domain.ValidationResult) (*domain.ValidationResult, error) {
	result = prepareResult(result, s.now())
	if err := s.exec(ctx, s.q.insertResult(result)); err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}
	stored, err := s.FindResult(ctx, result.ArticleID, result.HypothesisID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("result vanished after insert")
	}
	return stored, nil
}

// ListResearches returns the researches matching filter.
func (s *SQLiteStore) ListResearches(ctx context.Context, filter domain.ResearchFilter) ([]domain.Research, error) {
	query, args, err := s.q.selectResearches(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build researches query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query researches: %w", err)
	}
	defer rows.Close()
	return scanResearches(rows)
}

// ListEntityTypes returns every entity type.
func (s *SQLiteStore) ListEntityTypes(ctx context.Context) ([]domain.EntityType, error) {
	query, args, err := s.q.selectEntityTypes().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity types query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity types: %w", err)
	}
	defer rows.Close()
	return scanEntityTypes(rows)
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exec(ctx context.Context, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("insert skipped, key already stored", "query", query)
	}
	return nil
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}
