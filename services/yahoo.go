package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appconfig "stock-analyst/config"
	"stock-analyst/market"
	"stock-analyst/models"

	"github.com/go-resty/resty/v2"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// chartFunc fetches bars for [start, end] at the given interval
type chartFunc func(symbol string, start, end time.Time, interval datetime.Interval) (models.Bars, error)

// quoteFunc fetches the current session quote
type quoteFunc func(symbol string) (*finance.Quote, error)

// YahooService reads prices through finance-go and company data and news
// through Yahoo's JSON endpoints
type YahooService struct {
	http       *resty.Client
	fetchChart chartFunc
	fetchQuote quoteFunc
}

// NewYahooService creates a YahooService from configuration
func NewYahooService(cfg *appconfig.Config) *YahooService {
	client := resty.New().
		SetBaseURL(cfg.Yahoo.BaseURL).
		SetTimeout(time.Duration(cfg.Yahoo.TimeoutSeconds)*time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; stock-analyst)")

	return &YahooService{
		http:       client,
		fetchChart: financeChart,
		fetchQuote: quote.Get,
	}
}

func financeChart(symbol string, start, end time.Time, interval datetime.Interval) (models.Bars, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: interval,
	})

	bars := make(models.Bars, 0)
	for iter.Next() {
		bar := iter.Bar()
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: time.Unix(int64(bar.Timestamp), 0),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get chart for %s: %w", symbol, err)
	}
	return bars, nil
}

// GetHistory returns daily bars between start and end, oldest first
func (s *YahooService) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	return track(ctx, BreakerYahoo, "history", func() (models.Bars, error) {
		return s.fetchChart(symbol, start, end, datetime.OneDay)
	})
}

// GetIntraday returns one-minute bars of the most recent session
func (s *YahooService) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	end := time.Now()
	// covers a weekend plus a holiday
	start := end.AddDate(0, 0, -5)

	bars, err := track(ctx, BreakerYahoo, "intraday", func() (models.Bars, error) {
		return s.fetchChart(symbol, start, end, datetime.OneMin)
	})
	if err != nil {
		return nil, err
	}
	return lastSession(bars, market.ProfileFor(symbol).Location()), nil
}

// lastSession keeps the bars that share the calendar date of the final bar in loc
func lastSession(bars models.Bars, loc *time.Location) models.Bars {
	if len(bars) == 0 {
		return bars
	}
	day := bars[len(bars)-1].Timestamp.In(loc).Format("2006-01-02")
	i := len(bars)
	for i > 0 && bars[i-1].Timestamp.In(loc).Format("2006-01-02") == day {
		i--
	}
	return bars[i:]
}

// GetQuote returns the current session open, price and range
func (s *YahooService) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return track(ctx, BreakerYahoo, "quote", func() (*models.Quote, error) {
		q, err := s.fetchQuote(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if q == nil {
			return nil, fmt.Errorf("no quote for %s", symbol)
		}

		return &models.Quote{
			Symbol:        symbol,
			Open:          decimal.NewFromFloat(q.RegularMarketOpen),
			Price:         decimal.NewFromFloat(q.RegularMarketPrice),
			PreviousClose: decimal.NewFromFloat(q.RegularMarketPreviousClose),
			DayHigh:       decimal.NewFromFloat(q.RegularMarketDayHigh),
			DayLow:        decimal.NewFromFloat(q.RegularMarketDayLow),
			Volume:        int64(q.RegularMarketVolume),
			Timestamp:     time.Unix(int64(q.RegularMarketTime), 0),
		}, nil
	})
}

// yahooValue is Yahoo's {"raw": n, "fmt": "..."} number wrapper
type yahooValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
			} `json:"price"`
			SummaryProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
				Address1 string `json:"address1"`
				City     string `json:"city"`
				Country  string `json:"country"`
			} `json:"summaryProfile"`
			DefaultKeyStatistics struct {
				Beta        yahooValue `json:"beta"`
				ForwardPE   yahooValue `json:"forwardPE"`
				PriceToBook yahooValue `json:"priceToBook"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				Beta      yahooValue `json:"beta"`
				ForwardPE yahooValue `json:"forwardPE"`
			} `json:"summaryDetail"`
			FinancialData struct {
				DebtToEquity  yahooValue `json:"debtToEquity"`
				ProfitMargins yahooValue `json:"profitMargins"`
			} `json:"financialData"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func firstOf(values ...yahooValue) *float64 {
	for _, v := range values {
		if v.Raw != nil {
			return v.Raw
		}
	}
	return nil
}

// GetCompanyProfile returns the company name, sector and valuation ratios
func (s *YahooService) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	return track(ctx, BreakerYahoo, "profile", func() (*models.CompanyProfile, error) {
		resp, err := s.http.R().
			SetContext(ctx).
			SetPathParam("symbol", symbol).
			SetQueryParam("modules", "price,summaryProfile,defaultKeyStatistics,summaryDetail,financialData").
			Get("/v10/finance/quoteSummary/{symbol}")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch company profile: %w", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return nil, fmt.Errorf("%w: yahoo has no profile for %s", ErrSymbolNotFound, symbol)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("yahoo quoteSummary returned status %d", resp.StatusCode())
		}

		var body quoteSummaryResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("failed to decode company profile: %w", err)
		}
		if e := body.QuoteSummary.Error; e != nil {
			if e.Code == "Not Found" {
				return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, e.Description)
			}
			return nil, fmt.Errorf("yahoo quoteSummary error: %s", e.Description)
		}
		if len(body.QuoteSummary.Result) == 0 {
			return nil, fmt.Errorf("%w: no company profile for %s", ErrSymbolNotFound, symbol)
		}

		r := body.QuoteSummary.Result[0]
		name := r.Price.LongName
		if name == "" {
			name = r.Price.ShortName
		}
		return &models.CompanyProfile{
			Symbol:        symbol,
			LongName:      name,
			Sector:        r.SummaryProfile.Sector,
			Industry:      r.SummaryProfile.Industry,
			Beta:          firstOf(r.DefaultKeyStatistics.Beta, r.SummaryDetail.Beta),
			ForwardPE:     firstOf(r.DefaultKeyStatistics.ForwardPE, r.SummaryDetail.ForwardPE),
			PriceToBook:   firstOf(r.DefaultKeyStatistics.PriceToBook),
			DebtToEquity:  firstOf(r.FinancialData.DebtToEquity),
			ProfitMargins: firstOf(r.FinancialData.ProfitMargins),
			Address:       r.SummaryProfile.Address1,
			City:          r.SummaryProfile.City,
			Country:       r.SummaryProfile.Country,
		}, nil
	})
}

type searchResponse struct {
	News []struct {
		UUID                string `json:"uuid"`
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
		Type                string `json:"type"`
		Summary             string `json:"summary"`
	} `json:"news"`
}

// GetNews returns recent articles for a symbol, with Yahoo's content type preserved
func (s *YahooService) GetNews(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error) {
	if limit <= 0 {
		limit = 10
	}

	return track(ctx, BreakerYahoo, "news", func() ([]models.NewsArticle, error) {
		resp, err := s.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":           symbol,
				"newsCount":   fmt.Sprintf("%d", limit),
				"quotesCount": "0",
			}).
			Get("/v1/finance/search")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch news: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("yahoo search returned status %d", resp.StatusCode())
		}

		var body searchResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("failed to decode news: %w", err)
		}

		articles := make([]models.NewsArticle, 0, len(body.News))
		for _, item := range body.News {
			articles = append(articles, models.NewsArticle{
				Title:       item.Title,
				Summary:     item.Summary,
				URL:         item.Link,
				Source:      item.Publisher,
				ContentType: strings.ToUpper(item.Type),
				PublishedAt: time.Unix(item.ProviderPublishTime, 0).UTC(),
			})
		}
		return articles, nil
	})
}
