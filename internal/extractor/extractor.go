package extractor

import (
	"errors"
	"fmt"
	"net/url"

	"HypothesisValidator/internal/domain"
)

// ErrNoContent reports that a strategy found nothing worth keeping on the page.
var ErrNoContent = errors.New("no article content found")

// Page is a downloaded document handed to extraction strategies.
type Page struct {
	URL         *url.URL
	ContentType string
	Body        []byte
}

// Extractor captures a single extraction strategy (PMC sections, readability, etc.).
type Extractor interface {
	Name() string
	Supports(u *url.URL) bool
	Extract(page Page) (domain.ParsedArticle, error)
}

// Registry keeps extraction strategies in registration order.
type Registry struct {
	order      []string
	extractors map[string]Extractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Extractor{}}
}

// Register adds or replaces a strategy. A replaced strategy keeps its original position.
func (r *Registry) Register(ex Extractor) {
	if r.extractors == nil {
		r.extractors = map[string]Extractor{}
	}
	if _, ok := r.extractors[ex.Name()]; !ok {
		r.order = append(r.order, ex.Name())
	}
	r.extractors[ex.Name()] = ex
}

// Candidates lists the strategies that accept u, in registration order.
func (r *Registry) Candidates(u *url.URL) []Extractor {
	out := make([]Extractor, 0, len(r.order))
	for _, name := range r.order {
		ex := r.extractors[name]
		if ex.Supports(u) {
			out = append(out, ex)
		}
	}
	return out
}

// Extract runs every supporting strategy until one yields content.
func (r *Registry) Extract(page Page) (domain.ParsedArticle, error) {
	candidates := r.Candidates(page.URL)
	if len(candidates) == 0 {
		return domain.ParsedArticle{}, fmt.Errorf("no extractor supports %s", page.URL)
	}

	var errs []error
	for _, ex := range candidates {
		parsed, err := ex.Extract(page)
		if err == nil && parsed.Content != "" {
			return parsed, nil
		}
		if err == nil {
			err = ErrNoContent
		}
		errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
	}
	return domain.ParsedArticle{}, errors.Join(errs...)
}
