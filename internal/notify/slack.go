package notify

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

const defaultSlackBaseURL = "https://slack.com"

// SlackNotifier 通过 chat.postMessage 推送文本消息，尽力而为。
type SlackNotifier struct {
	token   string
	channel string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewSlackNotifier 构造 Slack 通知器。
func NewSlackNotifier(cfg config.NotifyConfig, logger *zap.Logger) *SlackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SlackNotifier{
		token:   cfg.SlackToken,
		channel: cfg.SlackChannel,
		baseURL: defaultSlackBaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithBaseURL 覆盖 Slack API 地址，测试用。
func (n *SlackNotifier) WithBaseURL(baseURL string) *SlackNotifier {
	n.baseURL = strings.TrimRight(baseURL, "/")
	return n
}

// Notify 发送消息。任何失败仅记录本地日志与原文，不向上传播。
func (n *SlackNotifier) Notify(ctx context.Context, text string) {
	if err := n.post(ctx, text); err != nil {
		n.logger.Warn("Slack 消息发送失败",
			zap.Error(err),
			zap.String("text", text),
		)
	}
}

func (n *SlackNotifier) post(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("channel", n.channel)
	form.Set("text", text)

	endpoint := n.baseURL + "/api/chat.postMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("构造 Slack 请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Slack 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("slack 返回 ok=false: %s", result.Error)
	}

	return nil
}
