package storage

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"HypothesisValidator/internal/domain"
)

const (
	articlesTable   = "articles"
	hypothesesTable = "hypotheses"
	resultsTable    = "validation_results"
	researchesTable = "researches"
	entityTypeTable = "entity_types"
)

var (
	articleColumns    = []string{"id", "url", "title", "content", "fetched_at"}
	hypothesisColumns = []string{"id", "text", "created_at"}
	resultColumns     = []string{"article_id", "hypothesis_id", "relevancy", "key_take", "validity", "computed_at"}
	researchColumns   = []string{"id", "primary_item", "secondary_item"}
	entityTypeColumns = []string{"id", "name"}
)

// queries builds the statements shared by the SQL backends.
// encodeTime converts timestamps into the driver's column representation.
type queries struct {
	sb         sq.StatementBuilderType
	encodeTime func(time.Time) any
}

func newQueries(ph sq.PlaceholderFormat, encodeTime func(time.Time) any) queries {
	return queries{sb: sq.StatementBuilder.PlaceholderFormat(ph), encodeTime: encodeTime}
}

func (q queries) selectArticle(where sq.Eq) sq.SelectBuilder {
	return q.sb.Select(articleColumns...).From(articlesTable).Where(where).Limit(1)
}

func (q queries) selectExistingURLs(urls []string) sq.SelectBuilder {
	return q.sb.Select("url").From(articlesTable).Where(sq.Eq{"url": urls})
}

func (q queries) insertArticle(a domain.Article) sq.InsertBuilder {
	return q.sb.Insert(articlesTable).
		Columns(articleColumns...).
		Values(a.ID, a.URL, a.Title, a.Content, q.encodeTime(a.FetchedAt)).
		Suffix("ON CONFLICT (url) DO NOTHING")
}

func (q queries) selectHypothesis(text string) sq.SelectBuilder {
	return q.sb.Select(hypothesisColumns...).From(hypothesesTable).Where(sq.Eq{"text": text}).Limit(1)
}

func (q queries) insertHypothesis(h domain.Hypothesis) sq.InsertBuilder {
	return q.sb.Insert(hypothesesTable).
		Columns(hypothesisColumns...).
		Values(h.ID, h.Text, q.encodeTime(h.CreatedAt)).
		Suffix("ON CONFLICT (text) DO NOTHING")
}

func (q queries) selectResult(articleID, hypothesisID string) sq.SelectBuilder {
	return q.sb.Select(resultColumns...).From(resultsTable).
		Where(sq.Eq{"article_id": articleID, "hypothesis_id": hypothesisID}).
		Limit(1)
}

func (q queries) insertResult(r domain.ValidationResult) sq.InsertBuilder {
	return q.sb.Insert(resultsTable).
		Columns(resultColumns...).
		Values(r.ArticleID, r.HypothesisID, r.Verdict.Relevancy, r.Verdict.KeyTake, r.Verdict.Validity, q.encodeTime(r.ComputedAt)).
		Suffix("ON CONFLICT (article_id, hypothesis_id) DO NOTHING")
}

func (q queries) selectResearches(f domain.ResearchFilter) sq.SelectBuilder {
	where := sq.Eq{}
	if f.PrimaryItem != "" {
		where["primary_item"] = f.PrimaryItem
	}
	if f.SecondaryItem != "" {
		where["secondary_item"] = f.SecondaryItem
	}
	b := q.sb.Select(researchColumns...).From(researchesTable)
	if len(where) > 0 {
		b = b.Where(where)
	}
	return b.OrderBy("id")
}

func (q queries) selectEntityTypes() sq.SelectBuilder {
	return q.sb.Select(entityTypeColumns...).From(entityTypeTable).OrderBy("id")
}

// rowScanner is the part of pgx.Rows and *sql.Rows the catalog readers use.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanResearches(rows rowScanner) ([]domain.Research, error) {
	out := []domain.Research{}
	for rows.Next() {
		var r domain.Research
		if err := rows.Scan(&r.ID, &r.PrimaryItem, &r.SecondaryItem); err != nil {
			return nil, fmt.Errorf("scan research: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanEntityTypes(rows rowScanner) ([]domain.EntityType, error) {
	out := []domain.EntityType{}
	for rows.Next() {
		var e domain.EntityType
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Record preparation shared by every backend: ids and timestamps are assigned on first write.

func prepareArticle(a domain.Article, now time.Time) domain.Article {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.FetchedAt.IsZero() {
		a.FetchedAt = now
	}
	a.FetchedAt = a.FetchedAt.UTC()
	return a
}

func prepareHypothesis(h domain.Hypothesis, now time.Time) domain.Hypothesis {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return h
}

func prepareResult(r domain.ValidationResult, now time.Time) domain.ValidationResult {
	if r.ComputedAt.IsZero() {
		r.ComputedAt = now
	}
	r.ComputedAt = r.ComputedAt.UTC()
	return r
}
