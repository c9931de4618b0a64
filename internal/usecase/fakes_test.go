package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"HypothesisValidator/internal/domain"
)

type fakeFetcher struct {
	mu          sync.Mutex
	calls       map[string]int
	fail        map[string]bool
	delay       map[string]time.Duration
	started     chan string
	inFlight    int
	maxInFlight int
	pause       time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: map[string]int{},
		fail:  map[string]bool{},
		delay: map[string]time.Duration{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, raw string) (domain.ParsedArticle, error) {
	f.mu.Lock()
	f.calls[raw]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	wait := f.delay[raw] + f.pause
	fail := f.fail[raw]
	started := f.started
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- raw
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return domain.ParsedArticle{}, &domain.FetchError{URL: raw, Err: ctx.Err()}
		}
	}
	if fail {
		return domain.ParsedArticle{}, &domain.FetchError{URL: raw, StatusCode: 404, Err: errors.New("not found")}
	}
	return domain.ParsedArticle{Content: "Full text of " + raw + "\nmore lines"}, nil
}

func (f *fakeFetcher) callsFor(raw string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[raw]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// fakeLLM returns a different verdict on every call so cache hits are observable.
type fakeLLM struct {
	mu            sync.Mutex
	verdictCalls  int
	failContent   []string
	gate          chan struct{}
	discovered    []string
	discoverErr   error
	discoverCalls int
	lastCount     int
}

func (l *fakeLLM) GenerateVerdict(ctx context.Context, hypothesis, articleText string) (domain.Verdict, error) {
	l.mu.Lock()
	l.verdictCalls++
	n := l.verdictCalls
	gate := l.gate
	fail := false
	for _, marker := range l.failContent {
		if strings.Contains(articleText, marker) {
			fail = true
		}
	}
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Verdict{}, ctx.Err()
		}
	}
	if fail {
		return domain.Verdict{}, errors.New("model overloaded")
	}
	return domain.Verdict{
		Relevancy: float64(n * 10 % 100),
		KeyTake:   fmt.Sprintf("take %d for %s", n, hypothesis),
		Validity:  50,
	}, nil
}

func (l *fakeLLM) DiscoverArticles(_ context.Context, _ string, count int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverCalls++
	l.lastCount = count
	if l.discoverErr != nil {
		return nil, l.discoverErr
	}
	return append([]string(nil), l.discovered...), nil
}

func (l *fakeLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verdictCalls
}
