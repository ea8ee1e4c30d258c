package models

import (
	"fmt"
	"sort"
)

// Sentiment is an article or aggregate news classification
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// Valid reports whether s is one of the three known labels
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// SentimentRecord is the model's reading of recent news for a ticker.
// NewsRating maps each article title to [label, url].
type SentimentRecord struct {
	NewsRating       map[string][]string `json:"news_rating" validate:"required,dive,len=2"`
	OverallSummary   string              `json:"overall_news_summary" validate:"required"`
	OverallSentiment Sentiment           `json:"overall_sentiment" validate:"required,oneof=POSITIVE NEGATIVE NEUTRAL"`
	SentimentScore   int                 `json:"sentiment_score" validate:"min=1,max=100"`
}

// Check enforces the constraints struct tags cannot express: every rated article carries a known label.
func (r *SentimentRecord) Check() error {
	titles := make([]string, 0, len(r.NewsRating))
	for title := range r.NewsRating {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	for _, title := range titles {
		rating := r.NewsRating[title]
		if len(rating) != 2 {
			return fmt.Errorf("news_rating[%q]: expected [sentiment, url], got %d values", title, len(rating))
		}
		if !Sentiment(rating[0]).Valid() {
			return fmt.Errorf("news_rating[%q]: unknown sentiment %q", title, rating[0])
		}
	}
	return nil
}
