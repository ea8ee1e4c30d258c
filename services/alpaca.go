package services

import (
	"context"
	"fmt"
	"time"

	"stock-analyst/market"
	"stock-analyst/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// alpacaDataClient is the subset of the Alpaca market data client used here (for testing)
type alpacaDataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaService reads US equity bars and snapshots from Alpaca market data.
// It never places orders.
type AlpacaService struct {
	dataClient alpacaDataClient
}

// NewAlpacaService creates a new AlpacaService instance
func NewAlpacaService(apiKey, apiSecret string) *AlpacaService {
	return &AlpacaService{
		dataClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func newTestableAlpacaService(client alpacaDataClient) *AlpacaService {
	return &AlpacaService{dataClient: client}
}

func (s *AlpacaService) bars(ctx context.Context, op, symbol string, start, end time.Time, timeframe marketdata.TimeFrame) (models.Bars, error) {
	return track(ctx, BreakerAlpaca, op, func() (models.Bars, error) {
		bars, err := s.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: timeframe,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
		}

		result := make(models.Bars, 0, len(bars))
		for _, bar := range bars {
			result = append(result, models.Bar{
				Symbol:    symbol,
				Timestamp: bar.Timestamp,
				Open:      decimal.NewFromFloat(bar.Open),
				High:      decimal.NewFromFloat(bar.High),
				Low:       decimal.NewFromFloat(bar.Low),
				Close:     decimal.NewFromFloat(bar.Close),
				Volume:    int64(bar.Volume),
			})
		}
		return result, nil
	})
}

// GetHistory returns daily bars between start and end
func (s *AlpacaService) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.Bars, error) {
	return s.bars(ctx, "history", symbol, start, end, marketdata.OneDay)
}

// GetIntraday returns one-minute bars of the most recent session
func (s *AlpacaService) GetIntraday(ctx context.Context, symbol string) (models.Bars, error) {
	end := time.Now()
	bars, err := s.bars(ctx, "intraday", symbol, end.AddDate(0, 0, -5), end, marketdata.OneMin)
	if err != nil {
		return nil, err
	}
	return lastSession(bars, market.ProfileFor(symbol).Location()), nil
}

// GetQuote returns today's open and latest price from the symbol snapshot
func (s *AlpacaService) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return track(ctx, BreakerAlpaca, "snapshot", func() (*models.Quote, error) {
		snap, err := s.dataClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot for %s: %w", symbol, err)
		}
		if snap == nil || snap.DailyBar == nil {
			return nil, fmt.Errorf("no daily bar in snapshot for %s", symbol)
		}

		q := &models.Quote{
			Symbol:    symbol,
			Open:      decimal.NewFromFloat(snap.DailyBar.Open),
			Price:     decimal.NewFromFloat(snap.DailyBar.Close),
			DayHigh:   decimal.NewFromFloat(snap.DailyBar.High),
			DayLow:    decimal.NewFromFloat(snap.DailyBar.Low),
			Volume:    int64(snap.DailyBar.Volume),
			Timestamp: snap.DailyBar.Timestamp,
		}
		if snap.LatestTrade != nil {
			q.Price = decimal.NewFromFloat(snap.LatestTrade.Price)
			q.Timestamp = snap.LatestTrade.Timestamp
		}
		if snap.PrevDailyBar != nil {
			q.PreviousClose = decimal.NewFromFloat(snap.PrevDailyBar.Close)
		}
		return q, nil
	})
}
