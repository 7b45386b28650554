package reconcile

import (
	"fmt"
	"strings"
	"sync"

	"coinpilot/internal/account"
)

// Snapshot 为对账用的账户切面，一旦创建不再修改。
type Snapshot struct {
	Quote       float64
	Base        float64
	AvgBuyPrice float64
	Valuation   float64
}

// TotalAssets 返回报价货币余额与持仓估值之和。
func (s Snapshot) TotalAssets() float64 {
	return s.Quote + s.Valuation
}

// FromAccount 由账户状态构造对账切面。
func FromAccount(state account.State) Snapshot {
	return Snapshot{
		Quote:       state.QuoteBalance,
		Base:        state.BaseBalance,
		AvgBuyPrice: state.AvgBuyPrice,
		Valuation:   state.Valuation,
	}
}

// Report 为一次 pre/post 对账的结果，仅由输入决定。
type Report struct {
	Pre  Snapshot
	Post Snapshot

	// ProfitLoss 为浮动盈亏：估值 - 均价*持仓；ReturnRate 为对应收益率（%），
	// 均价为0（从未持有）时收益率取0。
	ProfitLoss float64
	ReturnRate float64
}

// Compare 对比交易前后账户状态，纯函数。
func Compare(pre, post Snapshot) Report {
	cost := post.AvgBuyPrice * post.Base
	profitLoss := post.Valuation - cost

	returnRate := 0.0
	if post.AvgBuyPrice > 0 && cost != 0 {
		returnRate = profitLoss / cost * 100
	}

	return Report{
		Pre:        pre,
		Post:       post,
		ProfitLoss: profitLoss,
		ReturnRate: returnRate,
	}
}

// Render 生成人类可读的对账摘要。
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString("```\n")
	b.WriteString("KRW 余额     : " + FormatValueChange(r.Pre.Quote, r.Post.Quote, 0, " KRW") + "\n")
	b.WriteString("BTC 持仓     : " + FormatValueChange(r.Pre.Base, r.Post.Base, 5, " BTC") + "\n")
	b.WriteString("平均买入价   : " + FormatValueChange(r.Pre.AvgBuyPrice, r.Post.AvgBuyPrice, 0, " KRW") + "\n")
	b.WriteString("持仓估值     : " + FormatValueChange(r.Pre.Valuation, r.Post.Valuation, 0, " KRW") + "\n")
	b.WriteString(fmt.Sprintf("\n浮动盈亏     : %s KRW\n收益率       : %.2f%%\n\n", formatNumber(r.ProfitLoss, 0), r.ReturnRate))
	b.WriteString("总资产       : " + FormatValueChange(r.Pre.TotalAssets(), r.Post.TotalAssets(), 0, " KRW") + "\n")
	b.WriteString("```")
	return b.String()
}

// FormatValueChange 渲染单个字段的前后变化。
// 前后完全相等时输出“无变动”；前值为0时涨跌幅记为0，不做除法。
func FormatValueChange(pre, post float64, decimals int, suffix string) string {
	if pre == post {
		return fmt.Sprintf("%s%s -> 无变动", formatNumber(pre, decimals), suffix)
	}

	change := 0.0
	if pre != 0 {
		change = (post - pre) / pre * 100
	}
	return fmt.Sprintf("%s%s -> %s%s (%.2f%%)",
		formatNumber(pre, decimals), suffix, formatNumber(post, decimals), suffix, change)
}

// formatNumber 按千分位格式化数值，decimals 控制小数位数。
func formatNumber(value float64, decimals int) string {
	text := fmt.Sprintf("%.*f", decimals, value)

	negative := strings.HasPrefix(text, "-")
	if negative {
		text = text[1:]
	}

	intPart := text
	fracPart := ""
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		intPart = text[:idx]
		fracPart = text[idx:]
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteString(fracPart)
	return b.String()
}

// Session 维护跨周期的对账基线。基线由第一次采集播种，
// 此后每轮对账后推进为本轮 post，形成连续的链式对比而非对固定起点的对比。
type Session struct {
	mu       sync.Mutex
	baseline Snapshot
	seeded   bool
}

// NewSession 创建空会话。
func NewSession() *Session {
	return &Session{}
}

// Seed 播种基线，仅第一次调用生效。
func (s *Session) Seed(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		s.baseline = snap
		s.seeded = true
	}
}

// Baseline 返回当前基线及其是否已播种。
func (s *Session) Baseline() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline, s.seeded
}

// Reconcile 以当前基线为 pre 与给定 post 对账，并把基线推进为 post。
func (s *Session) Reconcile(post Snapshot) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	pre := post
	if s.seeded {
		pre = s.baseline
	}

	report := Compare(pre, post)

	s.baseline = post
	s.seeded = true

	return report
}
