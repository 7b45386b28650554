package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataService 聚合K线与盘口数据，产出一次周期内不可变的市场快照。
type MarketDataService struct {
	client *Client
	logger *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(client *Client, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		client: client,
		logger: logger,
	}
}

// GetSnapshot 拉取包含日线、小时线及订单簿的市场快照。
// 任一子请求失败即整体失败，由编排层决定终止本周期；此处不做跨调用级别的重试。
func (s *MarketDataService) GetSnapshot(ctx context.Context, req SnapshotRequest) (MarketSnapshot, error) {
	defaultReq := DefaultSnapshotRequest()
	if req.DailyLimit <= 0 {
		req.DailyLimit = defaultReq.DailyLimit
	}
	if req.HourlyLimit <= 0 {
		req.HourlyLimit = defaultReq.HourlyLimit
	}
	if req.OrderBookDepth <= 0 {
		req.OrderBookDepth = defaultReq.OrderBookDepth
	}

	var (
		daily     []Candle
		hourly    []Candle
		orderBook OrderBookSnapshot
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, TimeframeDaily, int64(req.DailyLimit))
		if err != nil {
			return err
		}
		daily = data
		return nil
	})

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, TimeframeHourly, int64(req.HourlyLimit))
		if err != nil {
			return err
		}
		hourly = data
		return nil
	})

	group.Go(func() error {
		book, err := s.client.FetchOrderBook(groupCtx, int64(req.OrderBookDepth))
		if err != nil {
			return err
		}
		orderBook = book
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, fmt.Errorf("%w: %v", ErrMarketDataUnavailable, err)
	}

	if len(daily) == 0 || len(hourly) == 0 {
		return MarketSnapshot{}, fmt.Errorf("%w: 交易所返回了空的K线序列", ErrMarketDataUnavailable)
	}
	if len(orderBook.Bids) == 0 || len(orderBook.Asks) == 0 {
		return MarketSnapshot{}, fmt.Errorf("%w: 订单簿不完整", ErrMarketDataUnavailable)
	}

	snapshot := MarketSnapshot{
		Symbol:      s.client.Symbol(),
		Daily:       daily,
		Hourly:      hourly,
		OrderBook:   orderBook,
		SpotPrice:   spotPrice(hourly, orderBook),
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("市场数据快照获取完成",
		zap.String("symbol", snapshot.Symbol),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("daily_count", len(snapshot.Daily)),
		zap.Int("hourly_count", len(snapshot.Hourly)),
		zap.Float64("spot_price", snapshot.SpotPrice),
	)

	return snapshot, nil
}

// spotPrice 以最近一根小时线收盘价作为现价，盘口最优买价兜底。
func spotPrice(hourly []Candle, book OrderBookSnapshot) float64 {
	if len(hourly) > 0 && hourly[len(hourly)-1].Close > 0 {
		return hourly[len(hourly)-1].Close
	}
	if bid := book.BestBid(); bid > 0 {
		return bid
	}
	return book.BestAsk()
}
