package domain

import (
	"errors"
	"fmt"
	"time"
)

// Hypothesis is a registered hypothesis text. Text is the exact-match identity.
type Hypothesis struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Verdict is the LLM judgement for one (article, hypothesis) pair.
type Verdict struct {
	Relevancy float64
	KeyTake   string
	Validity  float64
}

// Check enforces score bounds and a non-empty takeaway.
func (v Verdict) Check() error {
	if v.Relevancy < 0 || v.Relevancy > 100 {
		return fmt.Errorf("relevancy %v outside 0..100", v.Relevancy)
	}
	if v.Validity < 0 || v.Validity > 100 {
		return fmt.Errorf("validity %v outside 0..100", v.Validity)
	}
	if v.KeyTake == "" {
		return errors.New("key takeaway is empty")
	}
	return nil
}

// ValidationResult is a stored verdict. The (ArticleID, HypothesisID) pair is the cache key.
type ValidationResult struct {
	ArticleID    string
	HypothesisID string
	Verdict      Verdict
	ComputedAt   time.Time
}

// ArticleVerdict pairs an article URL with the verdict computed for it.
type ArticleVerdict struct {
	ArticleURL string
	Verdict    Verdict
}

// HypothesisReport is the outcome of discovery followed by validation.
// len(Results) + Failed equals the number of distinct discovered URLs.
type HypothesisReport struct {
	HypothesisID string
	Results      []ArticleVerdict
	Failed       int
	FailedURLs   []string
}
