package agents

import (
	"context"
	"strings"
)

// Intent is the branch the workflow takes for a request
type Intent string

const (
	IntentAnalyze  Intent = "ANALYZING"
	IntentTrending Intent = "RECOMMENDING_TRENDING"
)

// IntentClassifier decides which branch handles the latest conversation turn
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// ClassifierFunc adapts a function to IntentClassifier
type ClassifierFunc func(ctx context.Context, text string) (Intent, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Intent, error) {
	return f(ctx, text)
}

// DefaultTrendingTriggers are the phrases that send a request to the trending branch
var DefaultTrendingTriggers = []string{"trending", "worth buying"}

// KeywordClassifier routes to IntentTrending when the lowercased text contains any trigger.
// It is a substring match, so "untrending" also matches.
type KeywordClassifier struct {
	Triggers []string
}

// NewKeywordClassifier creates a classifier with DefaultTrendingTriggers
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Triggers: DefaultTrendingTriggers}
}

func (c *KeywordClassifier) Classify(_ context.Context, text string) (Intent, error) {
	lower := strings.ToLower(text)
	for _, trigger := range c.Triggers {
		if strings.Contains(lower, trigger) {
			return IntentTrending, nil
		}
	}
	return IntentAnalyze, nil
}
