package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe(0)
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
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "s1", Topic: "Apologética"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: study.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"tema":"Apologética"`) {
			t.Errorf("missing literal non-ASCII data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishChange_TopicsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// First change triggers topics.updated, the second is throttled.
	b.PublishChange(TypeStudyCreated, "a", "Outros")
	b.PublishChange(TypeTopicCreated, "", "Missiologia")

	time.Sleep(50 * time.Millisecond)
	topicsCount, changeCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, TypeTopicsUpdated) {
			topicsCount++
		} else {
			changeCount++
		}
	}

	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if topicsCount != 1 {
		t.Errorf("topics events = %d, want 1 (throttled)", topicsCount)
	}
}

func TestPublishChange_UnknownKindIgnored(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishChange("study.deleted", "a", "")
	time.Sleep(50 * time.Millisecond)

	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("unexpected messages: %v", msgs)
	}
}

func TestPublishChange_ReloadHasNoID(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishChange(TypeReloaded, "", "")
	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: library.reloaded\ndata: {}\n\n") {
			t.Errorf("msg = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(0))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishChange(TypeStudyCreated, "x", "Outros")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: study.created") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_KeepAlive(t *testing.T) {
	b := NewBroker(time.Second, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.body(), ": keep-alive") {
		t.Errorf("no keep-alive comment in %q", w.body())
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64); the extra publishes must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(0)
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

	// Safe no-ops after close.
	b.Publish(Event{Type: TypeStudyCreated})
	b.PublishChange(TypeStudyCreated, "x", "Outros")
}

// receive waits for n messages on ch.
func receive(t *testing.T, ch chan []byte, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("timeout after %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestEventsCarryIncreasingIDs(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "a"}})
	b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "b"}})

	msgs := receive(t, ch, 2)
	if !strings.HasPrefix(msgs[0], "id: 1\n") || !strings.HasPrefix(msgs[1], "id: 2\n") {
		t.Errorf("unexpected ids: %q", msgs)
	}
}

func TestSubscribe_ReplaysMissedEvents(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	first := b.Subscribe(0)
	defer b.Unsubscribe(first)

	for _, id := range []string{"a", "b", "c"} {
		b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: id}})
	}
	receive(t, first, 3)

	again := b.Subscribe(1)
	defer b.Unsubscribe(again)
	msgs := receive(t, again, 2)
	if !strings.Contains(msgs[0], `"id":"b"`) || !strings.Contains(msgs[1], `"id":"c"`) {
		t.Errorf("replay = %q", msgs)
	}
	if extra := drain(again); len(extra) != 0 {
		t.Errorf("unexpected extra messages: %q", extra)
	}
}

func TestSubscribe_GapBeyondHistorySendsReload(t *testing.T) {
	b := NewBroker(time.Hour, WithHistory(2))
	defer b.Close()
	first := b.Subscribe(0)
	defer b.Unsubscribe(first)

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "x"}})
	}
	receive(t, first, 5)

	again := b.Subscribe(1)
	defer b.Unsubscribe(again)
	msgs := receive(t, again, 1)
	if !strings.Contains(msgs[0], "event: "+TypeReloaded) {
		t.Errorf("expected reload, got %q", msgs[0])
	}
	if extra := drain(again); len(extra) != 0 {
		t.Errorf("unexpected extra messages: %q", extra)
	}
}

func TestSubscribe_IDFromEarlierRunSendsReload(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ch := b.Subscribe(42)
	defer b.Unsubscribe(ch)
	msgs := receive(t, ch, 1)
	if !strings.Contains(msgs[0], "event: "+TypeReloaded) {
		t.Errorf("expected reload, got %q", msgs[0])
	}
}

func TestSSEHandler_LastEventIDAndRetry(t *testing.T) {
	b := NewBroker(time.Hour, WithKeepAlive(0), WithRetry(1500*time.Millisecond))
	defer b.Close()
	first := b.Subscribe(0)
	defer b.Unsubscribe(first)

	b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "old"}})
	b.Publish(Event{Type: TypeStudyCreated, Data: ChangeData{ID: "new"}})
	receive(t, first, 2)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if !strings.HasPrefix(body, "retry: 1500\n\n") {
		t.Errorf("missing retry hint in %q", body)
	}
	if strings.Contains(body, `"id":"old"`) || !strings.Contains(body, `"id":"new"`) {
		t.Errorf("replay from Last-Event-ID wrong: %q", body)
	}
}
