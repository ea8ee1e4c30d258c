package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appconfig "stock-analyst/config"

	"github.com/go-resty/resty/v2"
)

// maxSearchResults bounds the digest handed back to the model
const maxSearchResults = 10

// SerperService runs Google searches through serper.dev
type SerperService struct {
	client *resty.Client
	retry  RetryConfig
}

// NewSerperService creates a new SerperService instance
func NewSerperService(cfg *appconfig.Config) (*SerperService, error) {
	if !cfg.HasSerper() {
		return nil, fmt.Errorf("SERPER_API_KEY is required")
	}

	client := resty.New().
		SetBaseURL(cfg.Serper.BaseURL).
		SetTimeout(30*time.Second).
		SetHeader("X-API-KEY", cfg.Serper.APIKey).
		SetHeader("Content-Type", "application/json")

	return &SerperService{client: client, retry: DefaultRetryConfig}, nil
}

type serperResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

type serperResponse struct {
	Organic    []serperResult `json:"organic"`
	TopStories []serperResult `json:"topStories"`
	News       []serperResult `json:"news"`
}

// Search returns a numbered text digest of the top results
func (s *SerperService) Search(ctx context.Context, query string) (string, error) {
	return track(ctx, BreakerSerper, "search", func() (string, error) {
		return Retry(ctx, s.retry, func() (string, error) {
			resp, err := s.client.R().
				SetContext(ctx).
				SetBody(map[string]any{"q": query, "num": maxSearchResults}).
				Post("/search")
			if err != nil {
				return "", fmt.Errorf("failed to search: %w", err)
			}
			if resp.StatusCode() != http.StatusOK {
				return "", fmt.Errorf("%w: %s", statusError("serper", resp.StatusCode()), resp.String())
			}

			var body serperResponse
			if err := json.Unmarshal(resp.Body(), &body); err != nil {
				return "", Permanent(fmt.Errorf("failed to decode search results: %w", err))
			}
			return formatSearchResults(body), nil
		})
	})
}

func formatSearchResults(body serperResponse) string {
	results := append(append(append([]serperResult{}, body.TopStories...), body.News...), body.Organic...)
	if len(results) == 0 {
		return "No results found."
	}
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.Date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", r.Date)
		}
		fmt.Fprintf(&b, "   %s\n", r.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}
