package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/extractor"
)

// DefaultSelectors are tried in order; PMC section markup comes first.
var DefaultSelectors = []string{
	"div.tsec.sec",
	"#maincontent",
	".article-content",
	"article",
	"main",
	"div.content",
	"body",
}

var inlineSpace = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

const noiseSelector = "script, style, noscript, nav, header, footer, aside, form"

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {}, "li": {}, "ul": {}, "ol": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "br": {}, "tr": {}, "table": {},
	"blockquote": {}, "pre": {}, "figcaption": {}, "dd": {}, "dt": {},
}

// SelectorExtractor pulls article text from the first matching CSS selector.
type SelectorExtractor struct {
	name      string
	hosts     []string
	selectors []string
}

var _ extractor.Extractor = (*SelectorExtractor)(nil)

// NewSelectorExtractor limits the strategy to hosts (and their subdomains); no hosts means any.
func NewSelectorExtractor(name string, hosts, selectors []string) *SelectorExtractor {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &SelectorExtractor{name: name, hosts: hosts, selectors: selectors}
}

// NewPMCExtractor targets PubMed Central and PubMed article pages.
func NewPMCExtractor() *SelectorExtractor {
	return NewSelectorExtractor("pmc", []string{"pmc.ncbi.nlm.nih.gov", "pubmed.ncbi.nlm.nih.gov", "ncbi.nlm.nih.gov"}, DefaultSelectors)
}

// Name identifies the strategy inside the registry.
func (s *SelectorExtractor) Name() string {
	return s.name
}

// Supports reports whether u belongs to one of the configured hosts.
func (s *SelectorExtractor) Supports(u *url.URL) bool {
	if len(s.hosts) == 0 {
		return true
	}
	return hostMatches(u.Hostname(), s.hosts)
}

// Extract strips page chrome and returns the text of the first non-empty selector match.
func (s *SelectorExtractor) Extract(page extractor.Page) (domain.ParsedArticle, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return domain.ParsedArticle{}, fmt.Errorf("parse document: %w", err)
	}

	title := documentTitle(doc)
	doc.Find(noiseSelector).Remove()

	for _, sel := range s.selectors {
		match := doc.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if text := blockText(match); text != "" {
			return domain.ParsedArticle{Title: title, Content: text}, nil
		}
	}
	return domain.ParsedArticle{}, extractor.ErrNoContent
}

func documentTitle(doc *goquery.Document) string {
	candidates := []string{
		attr(doc.Find(`meta[name="citation_title"]`), "content"),
		attr(doc.Find(`meta[property="og:title"]`), "content"),
		doc.Find("h1").First().Text(),
		doc.Find("title").First().Text(),
	}
	for _, c := range candidates {
		if c = collapseSpaces(c); c != "" {
			return c
		}
	}
	return ""
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return v
}

// blockText renders a selection as text with one line per block element.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, node *goquery.Selection) {
			name := goquery.NodeName(node)
			if name == "#text" {
				b.WriteString(inlineSpace.Replace(node.Text()))
				return
			}
			_, block := blockElements[name]
			if block {
				b.WriteByte('\n')
			}
			walk(node)
			if block {
				b.WriteByte('\n')
			}
		})
	}
	walk(sel)
	return normalizeText(b.String())
}

// normalizeText collapses whitespace inside lines and drops empty lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpaces(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hostMatches(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
