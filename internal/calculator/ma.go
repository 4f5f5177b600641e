package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"

	"StockPipeline/internal/model"
)

// CalculateSMA computes the simple moving average of the most recent period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sma := talib.Sma(prices, period)
	return sma[len(sma)-1], nil
}

// CalculateMA50 returns the 50-day simple moving average from daily bars.
func CalculateMA50(dailyBars []model.OHLCV) (float64, error) {
	return CalculateSMA(extractCloses(dailyBars), 50)
}

// CalculateMA200 returns the 200-day simple moving average from daily bars.
func CalculateMA200(dailyBars []model.OHLCV) (float64, error) {
	return CalculateSMA(extractCloses(dailyBars), 200)
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
