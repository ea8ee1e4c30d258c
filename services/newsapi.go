package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stock-analyst/models"
	"stock-analyst/observability"

	"github.com/go-resty/resty/v2"
)

// NewsAPIService handles communication with NewsAPI.org
type NewsAPIService struct {
	client *resty.Client
	retry  RetryConfig
}

// NewNewsAPIService creates a new NewsAPIService instance
func NewNewsAPIService(apiKey string) *NewsAPIService {
	return newNewsAPIServiceWithBaseURL(apiKey, "https://newsapi.org/v2")
}

func newNewsAPIServiceWithBaseURL(apiKey, baseURL string) *NewsAPIService {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("X-Api-Key", apiKey)

	return &NewsAPIService{client: client, retry: DefaultRetryConfig}
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

// GetNews returns the newest English articles mentioning symbol. Every article is a story.
func (s *NewsAPIService) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, 100)

	return track(ctx, BreakerNewsAPI, "news", func() ([]models.NewsArticle, error) {
		return Retry(ctx, s.retry, func() ([]models.NewsArticle, error) {
			resp, err := s.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"q":        symbol,
					"language": "en",
					"sortBy":   "publishedAt",
					"pageSize": strconv.Itoa(limit),
				}).
				Get("/everything")
			if err != nil {
				return nil, fmt.Errorf("failed to fetch news: %w", err)
			}

			var body newsAPIResponse
			if resp.StatusCode() != http.StatusOK {
				err := statusError("newsapi", resp.StatusCode())
				if json.Unmarshal(resp.Body(), &body) == nil && body.Message != "" {
					err = fmt.Errorf("%w: %s: %s", err, body.Code, body.Message)
				}
				return nil, err
			}
			if err := json.Unmarshal(resp.Body(), &body); err != nil {
				return nil, Permanent(fmt.Errorf("failed to decode newsapi response: %w", err))
			}
			return toArticles(body.Articles), nil
		})
	})
}

func toArticles(items []newsAPIArticle) []models.NewsArticle {
	articles := make([]models.NewsArticle, 0, len(items))
	for _, item := range items {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			observability.Debug("unparseable article timestamp, using now", "published_at", item.PublishedAt)
			publishedAt = time.Now().UTC()
		}
		articles = append(articles, models.NewsArticle{
			Title:       item.Title,
			Summary:     item.Description,
			URL:         item.URL,
			Source:      item.Source.Name,
			ContentType: models.ContentTypeStory,
			PublishedAt: publishedAt,
		})
	}
	return articles
}
