package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "verify.ok", Data: map[string]string{"path": "a.bin"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: verify.ok") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.bin"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishOutcome_StatsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger stats.updated.
	b.PublishOutcome("ok", "a.bin")
	// Second event immediately should NOT trigger another stats.updated.
	b.PublishOutcome("corrupt", "b.bin")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	statsCount := 0
	verifyCount := 0
	sawCorrupt := false
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "event: stats.updated"):
				statsCount++
			case strings.Contains(s, "event: verify.corrupt"):
				sawCorrupt = true
				verifyCount++
			default:
				verifyCount++
			}
		default:
			break loop
		}
	}

	if verifyCount != 2 {
		t.Errorf("verify events = %d, want 2", verifyCount)
	}
	if statsCount != 1 {
		t.Errorf("stats events = %d, want 1 (throttled)", statsCount)
	}
	if !sawCorrupt {
		t.Error("missing verify.corrupt event")
	}
}

func TestStatsCountsEveryOutcome(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	b.PublishOutcome("ok", "a")
	b.PublishOutcome("ok", "b")
	b.PublishOutcome("outdated", "c")

	got := b.Stats()
	if got["ok"] != 2 || got["outdated"] != 1 || got["corrupt"] != 0 {
		t.Errorf("stats = %v", got)
	}

	// Snapshot is detached from broker state.
	got["ok"] = 100
	if b.Stats()["ok"] != 2 {
		t.Error("stats snapshot aliases broker state")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "verify.outdated", Data: map[string]string{"path": "x.bin"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: verify.outdated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "verify.outdated", Data: map[string]string{"path": "x.bin"}})
	b.PublishOutcome("outdated", "x.bin")
	if len(b.Stats()) != 0 {
		t.Fatal("expected empty stats after close")
	}
}
