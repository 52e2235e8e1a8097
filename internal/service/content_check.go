package service

import (
	"strings"

	"github.com/ndrozd/studentportal-api/internal/models"
)

// CheckResult is the verdict of a submission content check.
type CheckResult struct {
	Passed          bool     `json:"passed"`
	WordCount       int      `json:"word_count"`
	MissingKeywords []string `json:"missing_keywords,omitempty"`
}

// ContentChecker decides whether submitted text satisfies a task's
// requirements. Richer review backends plug in behind this interface.
type ContentChecker interface {
	Check(text string, task *models.Task) CheckResult
}

// BasicContentChecker applies the built-in rules: minimum word count
// and case-insensitive presence of every required keyword.
type BasicContentChecker struct{}

// NewBasicContentChecker constructs BasicContentChecker.
func NewBasicContentChecker() *BasicContentChecker {
	return &BasicContentChecker{}
}

// Check runs the word-count and keyword rules against plain text.
func (c *BasicContentChecker) Check(text string, task *models.Task) CheckResult {
	result := CheckResult{WordCount: len(strings.Fields(text))}

	lower := strings.ToLower(text)
	for _, keyword := range splitKeywords(task.Keywords) {
		if !strings.Contains(lower, strings.ToLower(keyword)) {
			result.MissingKeywords = append(result.MissingKeywords, keyword)
		}
	}

	result.Passed = result.WordCount >= task.MinWords && len(result.MissingKeywords) == 0
	return result
}

func splitKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}
	return keywords
}
