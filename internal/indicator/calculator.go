package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"coinpilot/internal/exchange"
)

// MinCandles 为一次指标计算需要的最少K线数量，由最长回看窗口（布林带20）决定。
const MinCandles = 20

// Columns 保存一组K线对应的全部指标序列，与输入等长、按索引对齐。
type Columns struct {
	SMA3  []float64
	SMA5  []float64
	SMA10 []float64
	SMA20 []float64

	EMA3  []float64
	EMA5  []float64
	EMA10 []float64
	EMA20 []float64

	RSI14  []float64
	StochK []float64
	StochD []float64

	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	BBUpper  []float64
	BBMiddle []float64
	BBLower  []float64
}

// Calculator 基于 go-talib 计算常用技术指标，纯函数、无内部状态。
type Calculator struct{}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute 对给定K线序列计算移动均线、RSI、随机指标、MACD 与布林带。
func (c *Calculator) Compute(candles []exchange.Candle) (Columns, error) {
	if len(candles) < MinCandles {
		return Columns{}, fmt.Errorf("indicator: K线数量不足，至少需要 %d 根，当前 %d", MinCandles, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		highs[i] = candle.High
		lows[i] = candle.Low
		closes[i] = candle.Close
	}

	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	stochK, stochD := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	bbUpper, bbMiddle, bbLower := talib.BBands(closes, 20, 2, 2, talib.SMA)

	return Columns{
		SMA3:  talib.Sma(closes, 3),
		SMA5:  talib.Sma(closes, 5),
		SMA10: talib.Sma(closes, 10),
		SMA20: talib.Sma(closes, 20),

		EMA3:  talib.Ema(closes, 3),
		EMA5:  talib.Ema(closes, 5),
		EMA10: talib.Ema(closes, 10),
		EMA20: talib.Ema(closes, 20),

		RSI14:  talib.Rsi(closes, 14),
		StochK: stochK,
		StochD: stochD,

		MACD:       macd,
		MACDSignal: macdSignal,
		MACDHist:   macdHist,

		BBUpper:  bbUpper,
		BBMiddle: bbMiddle,
		BBLower:  bbLower,
	}, nil
}
