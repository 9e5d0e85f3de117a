package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("split = %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10)
	if len(got) != 2 {
		t.Fatalf("chunks = %d (%q), want 2", len(got), got)
	}
	if got[0] != strings.Repeat("a", 6) || got[1] != strings.Repeat("b", 6) {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("ж", 25)
	got := splitTelegramText(text, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	if strings.Join(got, "") != text {
		t.Fatal("chunks must reassemble into the original text")
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

type botAPI struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  bool
}

func (b *botAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.calls = append(b.calls, body)
		n := len(b.calls)
		fail := b.fail
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`, 100+n)
	}
}

func TestSendTextDeliversToChat(t *testing.T) {
	api := &botAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "test-token", APIURL: srv.URL, Timeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 42}, "привет", &kit.SendOptions{DisablePreview: true})
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.ChatID != 42 || ref.MessageID != 101 {
		t.Fatalf("ref = %+v", ref)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(api.calls))
	}
	if got := fmt.Sprint(api.calls[0]["text"]); got != "привет" {
		t.Fatalf("text = %q", got)
	}
	if got := fmt.Sprint(api.calls[0]["chat_id"]); got != "42" {
		t.Fatalf("chat_id = %q", got)
	}
}

func TestSendTextReportsAPIError(t *testing.T) {
	api := &botAPI{fail: true}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "test-token", APIURL: srv.URL, Timeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 42}, "hi", nil); err == nil {
		t.Fatal("expected error from failing Bot API")
	}
}

func TestSendTextHonorsCanceledContext(t *testing.T) {
	api := &botAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "test-token", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: 42}, "hi", nil); err == nil {
		t.Fatal("expected context error")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) != 0 {
		t.Fatalf("no request should be made, got %d", len(api.calls))
	}
}
