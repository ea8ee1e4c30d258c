package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-analyst/models"
	"stock-analyst/observability"
	"stock-analyst/services"
)

const newsSystemPrompt = `You are a financial analyst specializing in news sentiment analysis.
You will be given recent news articles about a stock, each with a title, summary, url and publish date.

Classify every article and the overall news flow. Respond with JSON in exactly this shape:
{
  "news_rating": {"<article title>": ["POSITIVE|NEGATIVE|NEUTRAL", "<article url>"]},
  "overall_news_summary": "<two or three sentences on what the news says about the company>",
  "overall_sentiment": "POSITIVE|NEGATIVE|NEUTRAL",
  "sentiment_score": <integer 1 to 100, 1 very bearish, 50 neutral, 100 very bullish>
}

Consider:
- Positive news: earnings beats, product launches, partnerships, analyst upgrades
- Negative news: earnings misses, lawsuits, management changes, analyst downgrades
- Neutral news: routine announcements, industry trends

Be objective and focus on how the news might impact stock price.`

// newsFetchLimit is how many raw items are requested before filtering to stories
const newsFetchLimit = 20

// NewsSentimentCollector reads recent stories about a ticker and asks the model for a SentimentRecord.
// Model failures are retried with identical input; there is no backoff.
type NewsSentimentCollector struct {
	llm         LLMService
	news        NewsSource
	maxAttempts int
	health      *AvailabilityProbe
}

// NewNewsSentimentCollector creates a new NewsSentimentCollector
func NewNewsSentimentCollector(llm LLMService, news NewsSource, maxAttempts int) *NewsSentimentCollector {
	return NewNewsSentimentCollectorWithCacheTTL(llm, news, maxAttempts, DefaultProbeTTL)
}

// NewNewsSentimentCollectorWithCacheTTL creates a new NewsSentimentCollector whose availability is cached for probeTTL
func NewNewsSentimentCollectorWithCacheTTL(llm LLMService, news NewsSource, maxAttempts int, probeTTL time.Duration) *NewsSentimentCollector {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	c := &NewsSentimentCollector{
		llm:         llm,
		news:        news,
		maxAttempts: maxAttempts,
	}
	c.health = NewAvailabilityProbe(StageNews, probeTTL, func(ctx context.Context) error {
		_, err := c.news.GetNews(ctx, "AAPL", 1)
		return err
	})
	return c
}

// Collect returns the sentiment of recent news about ticker.
// It fails with ErrNoNewsFound when no stories qualify and with ErrSentimentUnavailable
// once every model attempt has failed.
func (c *NewsSentimentCollector) Collect(ctx context.Context, ticker string) (*models.SentimentRecord, error) {
	raw, err := c.news.GetNews(ctx, ticker, newsFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", ticker, err)
	}

	stories := filterStories(raw)
	if len(stories) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoNewsFound, ticker)
	}

	prompt := buildNewsPrompt(ticker, stories)
	record, tries, err := services.Attempt(ctx, c.maxAttempts, services.RetryAny,
		func(ctx context.Context) (*models.SentimentRecord, error) {
			var r models.SentimentRecord
			if err := c.llm.InvokeStructured(ctx, newsSystemPrompt, prompt, &r); err != nil {
				return nil, err
			}
			return &r, nil
		})
	observability.GetMetrics().RecordModelAttempts(StageNews, tries)

	if errors.Is(err, services.ErrAttemptsExhausted) {
		return nil, fmt.Errorf("%w for %s: %w", ErrSentimentUnavailable, ticker, err)
	}
	if err != nil {
		return nil, err
	}
	observability.GetMetrics().RecordSentiment(string(record.OverallSentiment), record.SentimentScore)
	return record, nil
}

func filterStories(articles []models.NewsArticle) []models.NewsArticle {
	stories := make([]models.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if a.IsStory() {
			stories = append(stories, a)
		}
	}
	return stories
}

func buildNewsPrompt(ticker string, stories []models.NewsArticle) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze the following recent news about %s:\n\n", ticker))

	for i, article := range stories {
		sb.WriteString(fmt.Sprintf("%d. title: %s\n", i+1, article.Title))
		if article.Summary != "" {
			sb.WriteString(fmt.Sprintf("   summary: %s\n", article.Summary))
		}
		sb.WriteString(fmt.Sprintf("   url: %s\n", article.URL))
		if !article.PublishedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("   publish_date: %s\n", article.PublishedAt.Format("2006-01-02")))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Provide your sentiment analysis.")
	return sb.String()
}

// Name returns the stage name
func (c *NewsSentimentCollector) Name() string {
	return "News Sentiment Collector"
}

// IsAvailable reports whether the news source answers, cached for the probe TTL
func (c *NewsSentimentCollector) IsAvailable(ctx context.Context) bool {
	return c.health.Available(ctx)
}

// Health returns the availability probe, for invalidation and the last failure
func (c *NewsSentimentCollector) Health() *AvailabilityProbe {
	return c.health
}
