package translate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"coinpilot/internal/config"
)

func translateConfig() config.TranslateConfig {
	return config.TranslateConfig{
		DeepLAPIKey: "key",
		TargetLang:  "KO",
		Timeout:     time.Second,
	}
}

func TestTranslateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/translate" {
			t.Errorf("请求路径不符: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key key" {
			t.Errorf("认证头不符: %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("解析表单失败: %v", err)
		}
		if got := r.PostFormValue("target_lang"); got != "KO" {
			t.Errorf("目标语言不符: %s", got)
		}
		w.Write([]byte(`{"translations": [{"text": "상승 추세"}]}`))
	}))
	defer server.Close()

	translator := NewTranslator(translateConfig(), zap.NewNop()).WithBaseURL(server.URL)

	got := translator.Translate(context.Background(), "uptrend")
	if got != "상승 추세" {
		t.Fatalf("期望译文，实际 %q", got)
	}
}

func TestTranslateFallsBackOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	translator := NewTranslator(translateConfig(), zap.NewNop()).WithBaseURL(server.URL)

	if got := translator.Translate(context.Background(), "uptrend"); got != "uptrend" {
		t.Fatalf("失败时应返回原文，实际 %q", got)
	}
}

func TestTranslateSkipsWithoutKey(t *testing.T) {
	cfg := translateConfig()
	cfg.DeepLAPIKey = ""

	translator := NewTranslator(cfg, zap.NewNop())
	if got := translator.Translate(context.Background(), "uptrend"); got != "uptrend" {
		t.Fatalf("无密钥应原样返回，实际 %q", got)
	}
}

func TestTranslateSkipsEmptyText(t *testing.T) {
	translator := NewTranslator(translateConfig(), zap.NewNop())
	if got := translator.Translate(context.Background(), "   "); got != "   " {
		t.Fatalf("空白文本应原样返回，实际 %q", got)
	}
}
