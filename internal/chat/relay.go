package chat

import (
	"context"
	"sync"
	"time"
)

// DefaultSystemPrompt is sent with every completion unless overridden.
const DefaultSystemPrompt = "You are a friendly and helpful AI assistant. You answer questions concisely and informatively."

// Completer produces the next assistant reply for a transcript. The last turn
// of turns is the message being answered.
type Completer interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

// RelayOptions tunes a Relay. The zero value is usable.
type RelayOptions struct {
	SystemPrompt string
	Timeout      time.Duration // per completion, 0 means none
}

// Relay turns one inbound message into one reply, recording both in the
// session transcript.
type Relay struct {
	store   Store
	model   Completer
	system  string
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewRelay(store Store, model Completer, opts RelayOptions) *Relay {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Relay{
		store:   store,
		model:   model,
		system:  opts.SystemPrompt,
		timeout: opts.Timeout,
		locks:   make(map[string]*sessionLock),
	}
}

// Handle appends message as a human turn, asks the model for a reply and
// appends that as an assistant turn. When the model fails the human turn
// stays recorded, no assistant turn is added and an *Error with
// ErrorUpstream is returned.
func (r *Relay) Handle(ctx context.Context, sessionID, message string) (string, error) {
	if sessionID == "" {
		return "", &Error{Code: ErrorInvalidInput, Reason: "session id is required"}
	}

	unlock := r.lock(sessionID)
	defer unlock()

	if err := r.store.Append(ctx, sessionID, Turn{Role: RoleHuman, Text: message, Time: time.Now()}); err != nil {
		return "", &Error{Code: ErrorInternal, Reason: "failed to record message", Err: err}
	}
	history, err := r.store.History(ctx, sessionID)
	if err != nil {
		return "", &Error{Code: ErrorInternal, Reason: "failed to load history", Err: err}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	reply, err := r.model.Complete(callCtx, r.system, history)
	if err != nil {
		return "", &Error{Code: ErrorUpstream, Reason: "completion failed", Err: err}
	}

	if err := r.store.Append(ctx, sessionID, Turn{Role: RoleAssistant, Text: reply, Time: time.Now()}); err != nil {
		return "", &Error{Code: ErrorInternal, Reason: "failed to record reply", Err: err}
	}
	return reply, nil
}

// lock serialises calls for one session. Entries are dropped once no caller
// holds or waits on them.
func (r *Relay) lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &sessionLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}
