package parser

import (
	"bytes"
	"fmt"
	"net/url"

	readability "github.com/go-shiori/go-readability"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/extractor"
)

// ReadabilityExtractor is the catch-all strategy for pages without known markup.
type ReadabilityExtractor struct{}

var _ extractor.Extractor = ReadabilityExtractor{}

// Name identifies the strategy inside the registry.
func (ReadabilityExtractor) Name() string {
	return "readability"
}

// Supports accepts every URL.
func (ReadabilityExtractor) Supports(*url.URL) bool {
	return true
}

// Extract runs the readability algorithm over the page.
func (ReadabilityExtractor) Extract(page extractor.Page) (domain.ParsedArticle, error) {
	article, err := readability.FromReader(bytes.NewReader(page.Body), page.URL)
	if err != nil {
		return domain.ParsedArticle{}, fmt.Errorf("readability: %w", err)
	}
	content := normalizeText(article.TextContent)
	if content == "" {
		return domain.ParsedArticle{}, extractor.ErrNoContent
	}
	return domain.ParsedArticle{Title: collapseSpaces(article.Title), Content: content}, nil
}

// NewRegistry registers the PMC selectors, the generic selectors and readability, in that order.
func NewRegistry() *extractor.Registry {
	reg := extractor.NewRegistry()
	reg.Register(NewPMCExtractor())
	reg.Register(NewSelectorExtractor("generic", nil, []string{
		"#maincontent", ".article-content", "article", "main", "div.content",
	}))
	reg.Register(ReadabilityExtractor{})
	reg.Register(NewSelectorExtractor("body", nil, []string{"body"}))
	return reg
}
