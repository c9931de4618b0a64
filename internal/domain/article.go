package domain

import "time"

// Article is parsed article content keyed by its normalized URL.
type Article struct {
	ID        string
	URL       string
	Title     string
	Content   string
	FetchedAt time.Time
}

// ParsedArticle is what a fetcher extracts from a single URL.
type ParsedArticle struct {
	Title   string
	Content string
}

// UploadReport aggregates a batch upload.
// Uploaded + Failed always equals the number of distinct normalized URLs submitted.
type UploadReport struct {
	Uploaded   int
	Failed     int
	FailedURLs []string
}
