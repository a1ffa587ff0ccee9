package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PriceSentinel/internal/lifecycle"
	"PriceSentinel/internal/model"
)

// fakeTelegram records sendMessage calls and serves scripted getUpdates.
type fakeTelegram struct {
	mu       sync.Mutex
	sent     []map[string]string
	failN    int // answer 500 to the first failN sendMessage calls
	updates  string
	polls    int
	received chan struct{}
}

func (f *fakeTelegram) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)

		f.mu.Lock()
		f.sent = append(f.sent, payload)
		fail := len(f.sent) <= f.failN
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"ok":false}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
		if f.received != nil {
			select {
			case f.received <- struct{}{}:
			default:
			}
		}
	})
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls++
		first := f.polls == 1
		f.mu.Unlock()
		if !first {
			<-r.Context().Done()
			return
		}
		w.Write([]byte(f.updates))
	})
	return mux
}

func (f *fakeTelegram) messages() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sent...)
}

func newTestNotifier(t *testing.T, f *fakeTelegram) (*TelegramNotifier, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.APIBase = srv.URL
	var slept []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return n, &slept
}

func TestSend(t *testing.T) {
	f := &fakeTelegram{}
	n, _ := newTestNotifier(t, f)

	if err := n.Send(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := f.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0]["chat_id"] != "42" || msgs[0]["parse_mode"] != "HTML" || msgs[0]["text"] != "<b>hi</b>" {
		t.Errorf("unexpected payload: %v", msgs[0])
	}
}

func TestSend_APIError(t *testing.T) {
	f := &fakeTelegram{failN: 1}
	n, _ := newTestNotifier(t, f)

	err := n.Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status 500 error, got %v", err)
	}
}

func TestSendWithRetry(t *testing.T) {
	f := &fakeTelegram{failN: 2}
	n, slept := newTestNotifier(t, f)

	if err := n.SendWithRetry(context.Background(), "x", 3); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if len(f.messages()) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(f.messages()))
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Errorf("unexpected backoff: %v", *slept)
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	f := &fakeTelegram{failN: 100}
	n, _ := newTestNotifier(t, f)

	err := n.SendWithRetry(context.Background(), "x", 1)
	if err == nil || !strings.Contains(err.Error(), "all 2 retries exhausted") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStatusChanged(t *testing.T) {
	f := &fakeTelegram{}
	n, _ := newTestNotifier(t, f)

	p := model.Position{ID: "p1", Symbol: "RELIANCE", CompanyName: "Reliance Industries",
		EntryZone: "100-110", Target: "130", StopLoss: "90"}
	c := model.StatusChange{PositionID: "p1", Symbol: "RELIANCE", From: model.StatusHold, To: model.StatusExit,
		Price: 85, RealisedPct: model.Float(-19.05), Reason: string(lifecycle.ReasonStopLoss),
		At: time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)}

	if err := n.StatusChanged(context.Background(), p, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := f.messages()[0]["text"]
	for _, want := range []string{"Stop-loss hit", "RELIANCE", "hold → <b>exit</b>", "₹85.00", "-19.05%", "2026-03-02 10:30 IST"} {
		if !strings.Contains(text, want) {
			t.Errorf("alert missing %q:\n%s", want, text)
		}
	}
}

func TestSendDigest(t *testing.T) {
	f := &fakeTelegram{}
	n, _ := newTestNotifier(t, f)
	n.now = func() time.Time { return time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC) }

	positions := []model.Position{
		{Symbol: "A", EntryZone: "100", Status: model.StatusExit, RealisedPct: model.Float(10)},
		{Symbol: "B", EntryZone: "100", Status: model.StatusHold},
	}
	if err := n.SendDigest(context.Background(), positions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := f.messages()[0]["text"]
	if !strings.Contains(text, "2026-03-02") || !strings.Contains(text, "Tracked: 2") {
		t.Errorf("unexpected digest:\n%s", text)
	}
}

func TestStartPolling(t *testing.T) {
	f := &fakeTelegram{
		received: make(chan struct{}, 1),
		updates: `{"ok":true,"result":[
			{"update_id":7,"message":{"text":"/stats","chat":{"id":99}}},
			{"update_id":8,"message":{"text":" /help ","chat":{"id":42}}}
		]}`,
	}
	n, _ := newTestNotifier(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.StartPolling(ctx, func(_ context.Context, cmd string) string {
			mu.Lock()
			got = append(got, cmd)
			mu.Unlock()
			return "reply to " + cmd
		})
	}()

	select {
	case <-f.received:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "/help" {
		t.Errorf("expected only the configured chat's command, got %v", got)
	}
	if msgs := f.messages(); len(msgs) != 1 || msgs[0]["text"] != "reply to /help" {
		t.Errorf("unexpected replies: %v", msgs)
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
