package domain

import "strings"

const (
	titleLimit     = 200
	minTitleLength = 10
	untitled       = "Untitled Article"
)

// DeriveTitle picks a title from extracted text when the page carried none:
// the first line longer than 10 characters, else the leading text, capped at 200 characters.
func DeriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > minTitleLength {
			return truncateRunes(line, titleLimit)
		}
	}
	if head := strings.TrimSpace(truncateRunes(content, titleLimit)); head != "" {
		return head
	}
	return untitled
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
