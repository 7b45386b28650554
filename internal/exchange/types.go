package exchange

import "time"

const (
	// TimeframeDaily 为日线周期。
	TimeframeDaily = "1d"
	// TimeframeHourly 为小时线周期。
	TimeframeHourly = "1h"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// BestAsk 返回最优卖价，盘口为空时返回0。
func (s OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// BestBid 返回最优买价，盘口为空时返回0。
func (s OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// MarketSnapshot 聚合日线、小时线及盘口数据，一个周期内不可变。
type MarketSnapshot struct {
	Symbol      string
	Daily       []Candle
	Hourly      []Candle
	OrderBook   OrderBookSnapshot
	SpotPrice   float64
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	DailyLimit     int
	HourlyLimit    int
	OrderBookDepth int
}

// DefaultSnapshotRequest 返回默认快照参数：30根日线、24根小时线。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		DailyLimit:     30,
		HourlyLimit:    24,
		OrderBookDepth: 15,
	}
}
