package indicator

import (
	"math"
	"testing"
	"time"

	"coinpilot/internal/exchange"
)

func risingCandles(n int) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		close := float64(100 + i)
		candles[i] = exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      close - 1,
			High:      close + 2,
			Low:       close - 2,
			Close:     close,
			Volume:    10,
		}
	}
	return candles
}

func TestComputeRejectsShortSeries(t *testing.T) {
	calc := NewCalculator()
	if _, err := calc.Compute(risingCandles(MinCandles - 1)); err == nil {
		t.Fatal("K线不足应报错")
	}
}

func TestComputeColumnsAligned(t *testing.T) {
	calc := NewCalculator()
	candles := risingCandles(40)

	columns, err := calc.Compute(candles)
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}

	for name, column := range map[string][]float64{
		"sma_3":     columns.SMA3,
		"sma_20":    columns.SMA20,
		"ema_10":    columns.EMA10,
		"ema_20":    columns.EMA20,
		"rsi_14":    columns.RSI14,
		"stoch_k":   columns.StochK,
		"stoch_d":   columns.StochD,
		"macd":      columns.MACD,
		"macd_sig":  columns.MACDSignal,
		"macd_hist": columns.MACDHist,
		"bb_upper":  columns.BBUpper,
		"bb_middle": columns.BBMiddle,
		"bb_lower":  columns.BBLower,
	} {
		if len(column) != len(candles) {
			t.Fatalf("%s 长度 %d 与输入 %d 不对齐", name, len(column), len(candles))
		}
	}
}

func TestComputeSMAValues(t *testing.T) {
	calc := NewCalculator()
	candles := risingCandles(40)

	columns, err := calc.Compute(candles)
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}

	last := len(candles) - 1
	// 最后三根收盘价 137/138/139，均值 138。
	if math.Abs(columns.SMA3[last]-138) > 1e-9 {
		t.Fatalf("SMA3 末值应为138，实际 %f", columns.SMA3[last])
	}

	if math.Abs(columns.BBMiddle[last]-columns.SMA20[last]) > 1e-9 {
		t.Fatalf("布林带中轨应等于 SMA20，实际 %f vs %f", columns.BBMiddle[last], columns.SMA20[last])
	}
}
