package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"stock-analyst/models"

	"github.com/mmcdole/gofeed"
)

// RSSService reads per-ticker headline feeds
type RSSService struct {
	parser      *gofeed.Parser
	urlTemplate string
	retry       RetryConfig
}

// NewRSSService creates an RSSService. urlTemplate contains one %s for the ticker.
func NewRSSService(urlTemplate string) *RSSService {
	return &RSSService{
		parser:      gofeed.NewParser(),
		urlTemplate: urlTemplate,
		retry:       DefaultRetryConfig,
	}
}

// GetNews returns up to limit feed items as stories
func (s *RSSService) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	feedURL := fmt.Sprintf(s.urlTemplate, url.QueryEscape(symbol))

	return track(ctx, BreakerRSS, "feed", func() ([]models.NewsArticle, error) {
		feed, err := Retry(ctx, s.retry, func() (*gofeed.Feed, error) {
			feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
			var httpErr gofeed.HTTPError
			if errors.As(err, &httpErr) {
				return nil, statusError("rss feed", httpErr.StatusCode)
			}
			return feed, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read feed: %w", err)
		}

		articles := make([]models.NewsArticle, 0, len(feed.Items))
		for _, item := range feed.Items {
			if limit > 0 && len(articles) >= limit {
				break
			}
			a := models.NewsArticle{
				Title:       strings.TrimSpace(item.Title),
				Summary:     strings.TrimSpace(item.Description),
				URL:         item.Link,
				Source:      feed.Title,
				ContentType: models.ContentTypeStory,
				PublishedAt: time.Now().UTC(),
			}
			if item.PublishedParsed != nil {
				a.PublishedAt = *item.PublishedParsed
			}
			articles = append(articles, a)
		}
		return articles, nil
	})
}
