package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type notifierSpy struct {
	mu       sync.Mutex
	messages []string
	block    chan struct{}
}

func (n *notifierSpy) Notify(ctx context.Context, msg string) error {
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *notifierSpy) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func TestManagerDeliversFormattedMessage(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager("btc-guard", spy, ManagerOptions{})

	m.Important("user_stream_disconnected", map[string]string{
		"reason": "read timeout",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	msgs := spy.all()
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	for _, want := range []string{
		"[oco-guard] important",
		"instance: btc-guard",
		"event: user_stream_disconnected",
		"reason: read timeout",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestManagerCloseDrainsQueue(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager("x", spy, ManagerOptions{QueueSize: 8})

	for i := 0; i < 5; i++ {
		m.Important("protective_orders_cancelled", map[string]string{"symbol": "BTCUSDT"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(spy.all()); got != 5 {
		t.Fatalf("delivered = %d, want 5 (close drains the queue)", got)
	}
}

func TestManagerFullQueueDropsWithoutBlocking(t *testing.T) {
	spy := &notifierSpy{block: make(chan struct{})}
	m := NewManager("x", spy, ManagerOptions{QueueSize: 1})

	// First alert occupies the sender; the queue then fills and overflow
	// must return immediately instead of stalling the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Important("user_stream_disconnected", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Important() blocked on a full queue")
	}

	close(spy.block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestManagerNilSafety(t *testing.T) {
	if m := NewManager("x", nil, ManagerOptions{}); m != nil {
		t.Fatalf("NewManager(nil notifier) = %v, want nil", m)
	}
	var m *Manager
	m.Important("anything", nil) // must not panic
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("nil Close() error = %v", err)
	}
}

func TestTelegramNotifier(t *testing.T) {
	var gotPath string
	var gotBody telegramSendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat-7", srv.URL, time.Second)
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Fatalf("path = %q, want /bottok/sendMessage", gotPath)
	}
	if gotBody.ChatID != "chat-7" || gotBody.Text != "hello" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestTelegramNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat", srv.URL, time.Second)
	err := n.Notify(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("Notify() error = %v, want chat not found", err)
	}
}
