package agents

import (
	"context"
	"testing"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Should I buy this stock?", IntentAnalyze},
		{"what stocks are worth buying today", IntentTrending},
		{"Show me TRENDING tickers", IntentTrending},
		{"Is it Worth Buying?", IntentTrending},
		{"", IntentAnalyze},
		{"worth it? buying?", IntentAnalyze},
	}

	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifierFunc(t *testing.T) {
	var c IntentClassifier = ClassifierFunc(func(context.Context, string) (Intent, error) {
		return IntentTrending, nil
	})
	if got, _ := c.Classify(context.Background(), "anything"); got != IntentTrending {
		t.Errorf("got %v", got)
	}
}
