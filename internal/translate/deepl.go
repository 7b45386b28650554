package translate

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

const defaultDeepLBaseURL = "https://api-free.deepl.com"

// Translator 把决策理由翻译为目标语言用于通知，失败时原样返回输入。
type Translator struct {
	cfg     config.TranslateConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewTranslator 创建 DeepL 翻译客户端。
func NewTranslator(cfg config.TranslateConfig, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Translator{
		cfg:     cfg,
		baseURL: defaultDeepLBaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithBaseURL 覆盖 DeepL API 地址，测试用。
func (t *Translator) WithBaseURL(baseURL string) *Translator {
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

// Translate 翻译文本。密钥缺失或任何调用失败都返回原文，绝不报错中断。
func (t *Translator) Translate(ctx context.Context, text string) string {
	if t.cfg.DeepLAPIKey == "" || strings.TrimSpace(text) == "" {
		return text
	}

	translated, err := t.call(ctx, text)
	if err != nil {
		t.logger.Warn("翻译失败，使用原文", zap.Error(err))
		return text
	}
	return translated
}

func (t *Translator) call(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", t.cfg.TargetLang)

	endpoint := t.baseURL + "/v2/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("构造翻译请求失败: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.cfg.DeepLAPIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送翻译请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("deepl 响应码异常: %d", resp.StatusCode)
	}

	var payload struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("解析翻译响应失败: %w", err)
	}
	if len(payload.Translations) == 0 {
		return "", fmt.Errorf("deepl 未返回翻译结果")
	}

	return payload.Translations[0].Text, nil
}
