package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"coinpilot/internal/config"
)

const (
	defaultSerpBaseURL      = "https://serpapi.com"
	defaultFearGreedBaseURL = "https://api.alternative.me"

	// NoNewsAvailable 在新闻源不可用时作为兜底文档喂给模型。
	NoNewsAvailable = "No news data available."
)

// Headline 为一条简化后的新闻：标题、来源、时间戳（毫秒）。
type Headline struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// Client 拉取新闻与恐慌贪婪指数作为可选的决策上下文，全部尽力而为。
type Client struct {
	cfg              config.ContextConfig
	serpBaseURL      string
	fearGreedBaseURL string
	http             *http.Client
	logger           *zap.Logger
}

// NewClient 创建上下文数据客户端。
func NewClient(cfg config.ContextConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg:              cfg,
		serpBaseURL:      defaultSerpBaseURL,
		fearGreedBaseURL: defaultFearGreedBaseURL,
		http:             &http.Client{Timeout: timeout},
		logger:           logger,
	}
}

// WithBaseURLs 覆盖上游地址，测试用。
func (c *Client) WithBaseURLs(serp, fearGreed string) *Client {
	if serp != "" {
		c.serpBaseURL = strings.TrimRight(serp, "/")
	}
	if fearGreed != "" {
		c.fearGreedBaseURL = strings.TrimRight(fearGreed, "/")
	}
	return c
}

type serpResponse struct {
	NewsResults []serpNewsItem `json:"news_results"`
}

type serpNewsItem struct {
	Title   string         `json:"title"`
	Date    string         `json:"date"`
	Source  serpSource     `json:"source"`
	Stories []serpNewsItem `json:"stories"`
}

type serpSource struct {
	Name string `json:"name"`
}

// FetchHeadlines 拉取新闻头条并序列化为模型可读文本。
// 任何失败都降级为固定的兜底文案，不影响周期继续。
func (c *Client) FetchHeadlines(ctx context.Context) string {
	if !c.cfg.NewsEnabled {
		return ""
	}

	query := url.Values{}
	query.Set("engine", "google_news")
	query.Set("q", c.cfg.NewsQuery)
	query.Set("api_key", c.cfg.SerpAPIKey)

	endpoint := c.serpBaseURL + "/search.json?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("构造新闻请求失败", zap.Error(err))
		return NoNewsAvailable
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("拉取新闻失败", zap.Error(err))
		return NoNewsAvailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("新闻接口响应码异常", zap.Int("status", resp.StatusCode))
		return NoNewsAvailable
	}

	var payload serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("解析新闻响应失败", zap.Error(err))
		return NoNewsAvailable
	}

	headlines := flattenHeadlines(payload.NewsResults)
	if len(headlines) == 0 {
		return NoNewsAvailable
	}

	data, err := json.Marshal(headlines)
	if err != nil {
		c.logger.Warn("序列化新闻失败", zap.Error(err))
		return NoNewsAvailable
	}
	return string(data)
}

func flattenHeadlines(items []serpNewsItem) []Headline {
	var headlines []Headline
	for _, item := range items {
		if len(item.Stories) > 0 {
			for _, story := range item.Stories {
				headlines = append(headlines, toHeadline(story))
			}
			continue
		}
		headlines = append(headlines, toHeadline(item))
	}
	return headlines
}

func toHeadline(item serpNewsItem) Headline {
	source := item.Source.Name
	if source == "" {
		source = "Unknown source"
	}
	return Headline{
		Title:     item.Title,
		Source:    source,
		Timestamp: parseNewsDate(item.Date),
	}
}

// parseNewsDate 解析形如 "04/30/2024, 07:00 AM, +0000 UTC" 的时间，失败时返回0。
func parseNewsDate(raw string) int64 {
	if raw == "" {
		return 0
	}
	parsed, err := time.Parse("01/02/2006, 03:04 PM, -0700 MST", raw)
	if err != nil {
		return 0
	}
	return parsed.UnixMilli()
}

type fearGreedResponse struct {
	Data []map[string]interface{} `json:"data"`
}

// FetchFearGreed 获取最近 limit 条恐慌贪婪指数，失败时返回空串。
func (c *Client) FetchFearGreed(ctx context.Context) string {
	limit := c.cfg.FearGreedLimit
	if limit <= 0 {
		return ""
	}

	endpoint := fmt.Sprintf("%s/fng/?limit=%d&format=json", c.fearGreedBaseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("构造恐慌贪婪指数请求失败", zap.Error(err))
		return ""
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("拉取恐慌贪婪指数失败", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("恐慌贪婪指数响应码异常", zap.Int("status", resp.StatusCode))
		return ""
	}

	var payload fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("解析恐慌贪婪指数失败", zap.Error(err))
		return ""
	}
	if len(payload.Data) == 0 {
		return ""
	}

	data, err := json.Marshal(payload.Data)
	if err != nil {
		return ""
	}
	return string(data)
}
