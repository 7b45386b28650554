package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coinpilot/internal/exchange"
	"coinpilot/internal/indicator"
)

// Row 为单根K线及其对应指标值。指标回看窗口未满时值为0。
type Row struct {
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	SMA3       float64   `json:"sma_3"`
	SMA5       float64   `json:"sma_5"`
	SMA10      float64   `json:"sma_10"`
	SMA20      float64   `json:"sma_20"`
	EMA3       float64   `json:"ema_3"`
	EMA5       float64   `json:"ema_5"`
	EMA10      float64   `json:"ema_10"`
	EMA20      float64   `json:"ema_20"`
	RSI14      float64   `json:"rsi_14"`
	StochK     float64   `json:"stoch_k"`
	StochD     float64   `json:"stoch_d"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	MACDHist   float64   `json:"macd_histogram"`
	BBUpper    float64   `json:"bb_upper"`
	BBMiddle   float64   `json:"bb_middle"`
	BBLower    float64   `json:"bb_lower"`
}

// Series 为某一时间框架的完整富化序列。
type Series struct {
	Timeframe string `json:"timeframe"`
	Rows      []Row  `json:"rows"`
}

// Set 汇总日线与小时线的富化结果，供提示词拼装使用。
type Set struct {
	Symbol      string    `json:"symbol"`
	GeneratedAt time.Time `json:"generated_at"`
	Daily       Series    `json:"daily"`
	Hourly      Series    `json:"hourly"`
	SpotPrice   float64   `json:"spot_price"`
}

// JSON 将特征集序列化为紧凑 JSON。
func (s Set) JSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("序列化特征失败: %w", err)
	}
	return string(data), nil
}

// Extractor 对市场快照做指标富化，输入不可变、输出全新对象。
type Extractor struct {
	indicators *indicator.Calculator
	logger     *zap.Logger
}

// NewExtractor 创建特征提取器。
func NewExtractor(calc *indicator.Calculator, logger *zap.Logger) *Extractor {
	if calc == nil {
		calc = indicator.NewCalculator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		indicators: calc,
		logger:     logger,
	}
}

// Extract 计算全部时间框架的特征。
func (e *Extractor) Extract(ctx context.Context, snapshot exchange.MarketSnapshot) (Set, error) {
	select {
	case <-ctx.Done():
		return Set{}, ctx.Err()
	default:
	}

	daily, err := e.enrich(exchange.TimeframeDaily, snapshot.Daily)
	if err != nil {
		return Set{}, err
	}

	hourly, err := e.enrich(exchange.TimeframeHourly, snapshot.Hourly)
	if err != nil {
		return Set{}, err
	}

	set := Set{
		Symbol:      snapshot.Symbol,
		GeneratedAt: time.Now().UTC(),
		Daily:       daily,
		Hourly:      hourly,
		SpotPrice:   snapshot.SpotPrice,
	}

	e.logger.Debug("特征富化完成",
		zap.String("symbol", set.Symbol),
		zap.Int("daily_rows", len(set.Daily.Rows)),
		zap.Int("hourly_rows", len(set.Hourly.Rows)),
	)

	return set, nil
}

func (e *Extractor) enrich(timeframe string, candles []exchange.Candle) (Series, error) {
	columns, err := e.indicators.Compute(candles)
	if err != nil {
		return Series{}, fmt.Errorf("%s 特征计算失败: %w", timeframe, err)
	}

	rows := make([]Row, len(candles))
	for i, candle := range candles {
		rows[i] = Row{
			Timestamp:  candle.Timestamp,
			Open:       candle.Open,
			High:       candle.High,
			Low:        candle.Low,
			Close:      candle.Close,
			Volume:     candle.Volume,
			SMA3:       columns.SMA3[i],
			SMA5:       columns.SMA5[i],
			SMA10:      columns.SMA10[i],
			SMA20:      columns.SMA20[i],
			EMA3:       columns.EMA3[i],
			EMA5:       columns.EMA5[i],
			EMA10:      columns.EMA10[i],
			EMA20:      columns.EMA20[i],
			RSI14:      columns.RSI14[i],
			StochK:     columns.StochK[i],
			StochD:     columns.StochD[i],
			MACD:       columns.MACD[i],
			MACDSignal: columns.MACDSignal[i],
			MACDHist:   columns.MACDHist[i],
			BBUpper:    columns.BBUpper[i],
			BBMiddle:   columns.BBMiddle[i],
			BBLower:    columns.BBLower[i],
		}
	}

	return Series{Timeframe: timeframe, Rows: rows}, nil
}
