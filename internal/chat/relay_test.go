package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// echoModel replies with the last turn's text and records what it saw.
type echoModel struct {
	mu     sync.Mutex
	seen   [][]Turn
	system string
	fail   error
}

func (m *echoModel) Complete(_ context.Context, system string, turns []Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = system
	m.seen = append(m.seen, turns)
	if m.fail != nil {
		return "", m.fail
	}
	return "echo: " + turns[len(turns)-1].Text, nil
}

// ========== Handle ==========

func TestHandle_AlternatingTranscript(t *testing.T) {
	store := NewMemoryStore()
	relay := NewRelay(store, &echoModel{}, RelayOptions{})
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		reply, err := relay.Handle(ctx, "s", fmt.Sprintf("msg %d", i))
		if err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
		if reply != fmt.Sprintf("echo: msg %d", i) {
			t.Errorf("reply %d = %q", i, reply)
		}
	}

	h, _ := store.History(ctx, "s")
	if len(h) != 2*n {
		t.Fatalf("history has %d turns, want %d", len(h), 2*n)
	}
	for i, turn := range h {
		want := RoleHuman
		if i%2 == 1 {
			want = RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %s, want %s", i, turn.Role, want)
		}
	}
	if h[0].Text != "msg 0" || h[7].Text != "echo: msg 3" {
		t.Errorf("unexpected transcript order: %+v", h)
	}
}

func TestHandle_NewMessageSentOnce(t *testing.T) {
	model := &echoModel{}
	relay := NewRelay(NewMemoryStore(), model, RelayOptions{})
	ctx := context.Background()

	_, _ = relay.Handle(ctx, "s", "first")
	_, _ = relay.Handle(ctx, "s", "second")

	last := model.seen[1]
	if len(last) != 3 {
		t.Fatalf("model saw %d turns, want 3", len(last))
	}
	count := 0
	for _, turn := range last {
		if turn.Text == "second" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("new message appears %d times in the model input", count)
	}
	if last[2].Role != RoleHuman || last[2].Text != "second" {
		t.Errorf("last turn = %+v, want the new human message", last[2])
	}
}

func TestHandle_DefaultSystemPrompt(t *testing.T) {
	model := &echoModel{}
	relay := NewRelay(NewMemoryStore(), model, RelayOptions{})
	_, _ = relay.Handle(context.Background(), "s", "hi")
	if model.system != DefaultSystemPrompt {
		t.Errorf("system = %q", model.system)
	}

	model = &echoModel{}
	relay = NewRelay(NewMemoryStore(), model, RelayOptions{SystemPrompt: "be brief"})
	_, _ = relay.Handle(context.Background(), "s", "hi")
	if model.system != "be brief" {
		t.Errorf("system = %q, want override", model.system)
	}
}

func TestHandle_FailureKeepsHumanTurnOnly(t *testing.T) {
	store := NewMemoryStore()
	cause := errors.New("quota exceeded")
	relay := NewRelay(store, &echoModel{fail: cause}, RelayOptions{})
	ctx := context.Background()

	_, err := relay.Handle(ctx, "s", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != ErrorUpstream {
		t.Fatalf("err = %v, want upstream *Error", err)
	}
	if !errors.Is(err, cause) {
		t.Error("error should wrap the model failure")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error text %q lacks cause", err)
	}

	h, _ := store.History(ctx, "s")
	if len(h) != 1 || h[0].Role != RoleHuman {
		t.Fatalf("history = %+v, want a single human turn", h)
	}
}

func TestHandle_SessionUsableAfterFailure(t *testing.T) {
	store := NewMemoryStore()
	model := &echoModel{fail: errors.New("down")}
	relay := NewRelay(store, model, RelayOptions{})
	ctx := context.Background()

	_, _ = relay.Handle(ctx, "s", "one")
	model.fail = nil
	if _, err := relay.Handle(ctx, "s", "two"); err != nil {
		t.Fatalf("Handle after failure: %v", err)
	}
	h, _ := store.History(ctx, "s")
	if len(h) != 3 {
		t.Fatalf("history has %d turns, want 3", len(h))
	}
}

func TestHandle_EmptySessionID(t *testing.T) {
	relay := NewRelay(NewMemoryStore(), &echoModel{}, RelayOptions{})
	_, err := relay.Handle(context.Background(), "", "hi")
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != ErrorInvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

type slowModel struct{}

func (slowModel) Complete(ctx context.Context, _ string, _ []Turn) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Second):
		return "late", nil
	}
}

func TestHandle_Timeout(t *testing.T) {
	relay := NewRelay(NewMemoryStore(), slowModel{}, RelayOptions{Timeout: 20 * time.Millisecond})
	_, err := relay.Handle(context.Background(), "s", "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

// countingModel tracks how many calls for one session overlap.
type countingModel struct {
	active atomic.Int32
	max    atomic.Int32
}

func (m *countingModel) Complete(_ context.Context, _ string, turns []Turn) (string, error) {
	n := m.active.Add(1)
	for {
		cur := m.max.Load()
		if n <= cur || m.max.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	m.active.Add(-1)
	return "ok", nil
}

func TestHandle_SameSessionSerialised(t *testing.T) {
	store := NewMemoryStore()
	model := &countingModel{}
	relay := NewRelay(store, model, RelayOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = relay.Handle(ctx, "shared", fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	if got := model.max.Load(); got != 1 {
		t.Errorf("max concurrent completions for one session = %d, want 1", got)
	}
	h, _ := store.History(ctx, "shared")
	if len(h) != 16 {
		t.Fatalf("history has %d turns, want 16", len(h))
	}
	for i, turn := range h {
		if (i%2 == 0) != (turn.Role == RoleHuman) {
			t.Fatalf("turn %d role %s breaks alternation", i, turn.Role)
		}
	}
	relay.mu.Lock()
	left := len(relay.locks)
	relay.mu.Unlock()
	if left != 0 {
		t.Errorf("%d session locks left after all calls returned", left)
	}
}

func TestHandle_DistinctSessionsIsolated(t *testing.T) {
	store := NewMemoryStore()
	relay := NewRelay(store, &echoModel{}, RelayOptions{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < 3; j++ {
				_, _ = relay.Handle(ctx, id, fmt.Sprintf("%s-%d", id, j))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		h, _ := store.History(ctx, id)
		if len(h) != 6 {
			t.Fatalf("%s has %d turns, want 6", id, len(h))
		}
		for _, turn := range h {
			if !strings.Contains(turn.Text, id+"-") {
				t.Errorf("%s contains foreign turn %q", id, turn.Text)
			}
		}
	}
}
