package calculator

import (
	"errors"

	"github.com/markcheno/go-talib"

	"StockPipeline/internal/model"
)

// ErrInsufficientData is returned when a series is too short for an indicator.
var ErrInsufficientData = errors.New("not enough data")

// CalculateRSI computes the Wilder-smoothed RSI over the given period.
// Requires at least period+1 bars.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	if period < 2 {
		return 0, errors.New("period must be at least 2")
	}
	if len(bars) < period+1 {
		return 0, ErrInsufficientData
	}
	rsi := talib.Rsi(extractCloses(bars), period)
	return rsi[len(rsi)-1], nil
}
