package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

const verdictSystemPrompt = "You extract structured judgments about whether a scientific article " +
	"supports a biological hypothesis. Be objective, concise, and conservative. " +
	`Respond with a JSON object of the form {"relevancy": <number 0-100>, "key_take": "<2-3 sentence summary>", "validity": <number 0-100>}. ` +
	"Relevancy reflects how relevant the article is to the hypothesis. " +
	"Validity reflects how much the article confirms (high) or refutes (low) the hypothesis."

const discoverySystemPrompt = "You find peer-reviewed biomedical literature. " +
	`Respond with a JSON object of the form {"urls": ["https://pmc.ncbi.nlm.nih.gov/articles/PMC<ID>/", ...]} ` +
	"listing real article pages only."

var errEmptyCompletion = errors.New("llm returned empty response")

// Completer sends one system+user exchange and returns the raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Gateway turns raw completions into verdicts and discovered URLs.
type Gateway struct {
	completer    Completer
	contentLimit int
	allowedHosts []string
	logger       *slog.Logger
}

var _ ports.LLMGateway = (*Gateway)(nil)

// NewGateway wraps a vendor completer.
func NewGateway(c Completer, cfg config.LLMConfig, discovery config.DiscoveryConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		completer:    c,
		contentLimit: cfg.ContentLimit,
		allowedHosts: discovery.AllowedHosts,
		logger:       logger,
	}
}

// GenerateVerdict scores articleText against hypothesis.
func (g *Gateway) GenerateVerdict(ctx context.Context, hypothesis, articleText string) (domain.Verdict, error) {
	raw, err := g.completer.Complete(ctx, verdictSystemPrompt, verdictPrompt(hypothesis, articleText, g.contentLimit))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("generate verdict: %w", err)
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		g.logger.Debug("unparseable verdict", "response", raw)
		return domain.Verdict{}, fmt.Errorf("generate verdict: %w", err)
	}
	return verdict, nil
}

// DiscoverArticles asks for up to count article URLs on the allowed hosts.
func (g *Gateway) DiscoverArticles(ctx context.Context, hypothesis string, count int) ([]string, error) {
	raw, err := g.completer.Complete(ctx, discoverySystemPrompt, discoveryPrompt(hypothesis, count))
	if err != nil {
		return nil, fmt.Errorf("discover articles: %w", err)
	}
	urls, err := parseDiscovery(raw, g.allowedHosts, count)
	if err != nil {
		g.logger.Debug("unparseable discovery", "response", raw)
		return nil, fmt.Errorf("discover articles: %w", err)
	}
	g.logger.Debug("articles discovered", "requested", count, "returned", len(urls))
	return urls, nil
}

func verdictPrompt(hypothesis, content string, limit int) string {
	if limit > 0 {
		if runes := []rune(content); len(runes) > limit {
			content = string(runes[:limit])
		}
	}
	return fmt.Sprintf("Hypothesis to validate:\n%s\n\nArticle content:\n%s\n\n"+
		"Please analyze the article and provide your assessment in the JSON format specified.", hypothesis, content)
}

func discoveryPrompt(hypothesis string, count int) string {
	return fmt.Sprintf("Hypothesis: %q\n\nReturn JSON with %d PubMed Central or PubMed article URLs relevant to this hypothesis:\n"+
		`{"urls": ["https://pmc.ncbi.nlm.nih.gov/articles/PMC[ID]/", ...]}`+"\nReturn %d URLs now.", hypothesis, count, count)
}

type verdictPayload struct {
	Relevancy *float64 `json:"relevancy"`
	KeyTake   string   `json:"key_take"`
	Validity  *float64 `json:"validity"`
}

func parseVerdict(raw string) (domain.Verdict, error) {
	body, err := jsonBody(raw)
	if err != nil {
		return domain.Verdict{}, err
	}
	var p verdictPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if p.Relevancy == nil || p.Validity == nil {
		return domain.Verdict{}, errors.New("verdict is missing scores")
	}
	v := domain.Verdict{Relevancy: *p.Relevancy, KeyTake: strings.TrimSpace(p.KeyTake), Validity: *p.Validity}
	if err := v.Check(); err != nil {
		return domain.Verdict{}, err
	}
	return v, nil
}

var discoveryKeys = []string{"urls", "articles", "links", "results"}

func parseDiscovery(raw string, allowedHosts []string, count int) ([]string, error) {
	body, err := jsonBody(raw)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("decode url list: %w", err)
		}
	} else {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			return nil, fmt.Errorf("decode url list: %w", err)
		}
		for _, key := range discoveryKeys {
			if err := json.Unmarshal(obj[key], &items); err == nil && len(items) > 0 {
				break
			}
			items = nil
		}
	}

	seen := make(map[string]struct{}, len(items))
	urls := make([]string, 0, len(items))
	for _, item := range items {
		candidate := itemURL(item)
		if candidate == "" || !allowedHost(candidate, allowedHosts) {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		urls = append(urls, candidate)
		if count > 0 && len(urls) == count {
			break
		}
	}
	return urls, nil
}

// itemURL accepts either a bare string or an object with a url field.
func itemURL(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		return strings.TrimSpace(obj.URL)
	}
	return ""
}

func allowedHost(raw string, hosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if len(hosts) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// jsonBody strips markdown fences and surrounding prose from a model reply.
func jsonBody(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errEmptyCompletion
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s, nil
	}
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON in llm response")
	}
	return s[start : end+1], nil
}
