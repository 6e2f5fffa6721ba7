package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
	"go.uber.org/zap"
)

func fakeOpenAI(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"json_object"`) {
			t.Errorf("expected a JSON response format in request: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
			return
		}
		io.WriteString(w, `{"id": "cmpl-1", "object": "chat.completion", "choices": [{"index": 0,
			"message": {"role": "assistant", "content": `+content+`}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *IntroClient {
	t.Helper()
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("openai.api_key", "test-key")
	cfg.Set("openai.base_url", baseURL)

	client, err := NewFactory(cfg, zap.NewNop(), utils.NewTextProcessor(zap.NewNop())).CreateIntroClient(280)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestWriteIntro(t *testing.T) {
	server := fakeOpenAI(t, `"{\"intro\": \"Anna, meet Bence: you both love music.\"}"`, http.StatusOK)
	client := newTestClient(t, server.URL)

	got, err := client.WriteIntro(context.Background(), core.Profile{Name: "Anna"}, core.Profile{Name: "Bence"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Anna, meet Bence: you both love music." {
		t.Fatalf("unexpected intro: %q", got)
	}
}

func TestWriteIntroErrors(t *testing.T) {
	failing := fakeOpenAI(t, "", http.StatusInternalServerError)
	if _, err := newTestClient(t, failing.URL).WriteIntro(context.Background(), core.Profile{}, core.Profile{}); err == nil {
		t.Fatalf("expected error for failing API")
	}

	garbled := fakeOpenAI(t, `"no json at all"`, http.StatusOK)
	if _, err := newTestClient(t, garbled.URL).WriteIntro(context.Background(), core.Profile{}, core.Profile{}); err == nil {
		t.Fatalf("expected error for unparseable reply")
	}
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())
	if _, err := NewFactory(cfg, zap.NewNop(), utils.NewTextProcessor(zap.NewNop())).CreateIntroClient(280); err == nil {
		t.Fatalf("expected error without api key")
	}
}
