package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists articles, hypotheses and verdicts into Postgres.
type PostgresStore struct {
	pool   Pool
	q      queries
	dsn    string
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Store = (*PostgresStore)(nil)

// OpenPostgres connects a pgx pool using the storage config.
func OpenPostgres(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(pool, logger)
	store.dsn = cfg.DSN
	return store, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		q:      newQueries(sq.Dollar, func(t time.Time) any { return t }),
		now:    time.Now,
		logger: logger,
	}
}

// FindArticle looks an article up by normalized URL.
func (s *PostgresStore) FindArticle(ctx context.Context, url string) (*domain.Article, error) {
	return s.findArticle(ctx, sq.Eq{"url": url})
}

// FindArticleByID looks an article up by its id.
func (s *PostgresStore) FindArticleByID(ctx context.Context, id string) (*domain.Article, error) {
	return s.findArticle(ctx, sq.Eq{"id": id})
}

func (s *PostgresStore) findArticle(ctx context.Context, where sq.Eq) (*domain.Article, error) {
	query, args, err := s.q.selectArticle(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	var a domain.Article
	err = s.pool.QueryRow(ctx, query, args...).Scan(&a.ID, &a.URL, &a.Title, &a.Content, &a.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}
	return &a, nil
}

// ExistingArticles reports which of urls are already stored.
func (s *PostgresStore) ExistingArticles(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	query, args, err := s.q.selectExistingURLs(urls).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *PostgresStore) PutArticle(ctx context.Context, article domain.Article) (*domain.Article, error) {
	article = prepareArticle(article, s.now())
	query, args, err := s.q.insertArticle(article).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article insert: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("article already stored", "url", article.URL)
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
func (s *PostgresStore) FindHypothesis(ctx context.Context, text string) (*domain.Hypothesis, error) {
	query, args, err := s.q.selectHypothesis(text).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hypothesis query: %w", err)
	}

	var h domain.Hypothesis
	err = s.pool.QueryRow(ctx, query, args...).Scan(&h.ID, &h.Text, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hypothesis: %w", err)
	}
	return &h, nil
}

// PutHypothesis inserts the hypothesis unless its text is taken and returns the stored row.
func (s *PostgresStore) PutHypothesis(ctx context.Context, hypothesis domain.Hypothesis) (*domain.Hypothesis, error) {
	hypothesis = prepareHypothesis(hypothesis, s.now())
	query, args, err := s.q.insertHypothesis(hypothesis).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hypothesis insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
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
func (s *PostgresStore) FindResult(ctx context.Context, articleID, hypothesisID string) (*domain.ValidationResult, error) {
	query, args, err := s.q.selectResult(articleID, hypothesisID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build result query: %w", err)
	}

	var r domain.ValidationResult
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&r.ArticleID, &r.HypothesisID, &r.Verdict.Relevancy, &r.Verdict.KeyTake, &r.Verdict.Validity, &r.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}
	return &r, nil
}

// PutResult inserts the verdict unless the pair already has one and returns the stored row.
func (s *PostgresStore) PutResult(ctx context.Context, result domain.ValidationResult) (*domain.ValidationResult, error) {
	result = prepareResult(result, s.now())
	query, args, err := s.q.insertResult(result).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build result insert: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("verdict already stored", "article_id", result.ArticleID, "hypothesis_id", result.HypothesisID)
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
func (s *PostgresStore) ListResearches(ctx context.Context, filter domain.ResearchFilter) ([]domain.Research, error) {
	query, args, err := s.q.selectResearches(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build researches query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query researches: %w", err)
	}
	defer rows.Close()
	return scanResearches(rows)
}

// ListEntityTypes returns every entity type.
func (s *PostgresStore) ListEntityTypes(ctx context.Context) ([]domain.EntityType, error) {
	query, args, err := s.q.selectEntityTypes().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity types query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity types: %w", err)
	}
	defer rows.Close()
	return scanEntityTypes(rows)
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies every pending migration.
func (s *PostgresStore) Migrate(context.Context) error {
	if s.dsn == "" {
		return errors.New("migrate: store was built without a dsn")
	}
	return MigrateUp(s.dsn)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp runs all up migrations against dsn.
func MigrateUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run up migrations: %w", err)
	}
	return nil
}

// MigrateDown reverts all migrations against dsn.
func MigrateDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run down migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied version and dirty flag.
func MigrationVersion(dsn string) (uint, bool, error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read version: %w", err)
	}
	return v, dirty, nil
}
