package action

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	callbackTTL   = 5 * time.Minute
	sweepInterval = time.Minute
)

// ErrCallbackExpired is returned when a callback id is unknown, already
// consumed, or past its TTL. The message is part of the HTTP contract.
var ErrCallbackExpired = errors.New("Callback expired or not found")

type callbackEntry struct {
	result   *Result
	storedAt time.Time
}

// Registry keeps interactive results alive between HTTP round trips. Each
// continuation is single-use: consuming it removes the entry. Entries
// never survive a process restart.
type Registry struct {
	Logger *slog.Logger

	mu      sync.Mutex
	entries map[string]callbackEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry builds a registry with the standard five minute TTL.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]callbackEntry),
		ttl:     callbackTTL,
		now:     time.Now,
	}
}

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Register stores an interactive result and returns its callback id.
// Non-interactive results need no callback and return "".
func (r *Registry) Register(res *Result) string {
	if res == nil || !res.Type.Interactive() {
		return ""
	}
	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = callbackEntry{result: res, storedAt: r.now()}
	r.mu.Unlock()
	return id
}

// take consumes an entry, honoring the TTL.
func (r *Registry) take(id string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrCallbackExpired
	}
	delete(r.entries, id)
	if r.now().Sub(entry.storedAt) > r.ttl {
		return nil, ErrCallbackExpired
	}
	return entry.result, nil
}

// Confirm resolves a pending confirm dialog.
func (r *Registry) Confirm(ctx context.Context, id string, accepted bool) (*Result, error) {
	res, err := r.take(id)
	if err != nil {
		return nil, err
	}
	if res.Type != TypeConfirm {
		return nil, ErrCallbackExpired
	}
	next := res.OnCancel
	if accepted {
		next = res.OnConfirm
	}
	if next == nil {
		return Success("ok"), nil
	}
	return next(ctx), nil
}

// Select resolves a pending choice dialog with the chosen option id.
func (r *Registry) Select(ctx context.Context, id, optionID string) (*Result, error) {
	res, err := r.take(id)
	if err != nil {
		return nil, err
	}
	if res.Type != TypeChoice || res.OnSelect == nil {
		return nil, ErrCallbackExpired
	}
	return res.OnSelect(ctx, optionID), nil
}

// Submit resolves a pending input dialog with the entered value.
func (r *Registry) Submit(ctx context.Context, id, value string) (*Result, error) {
	res, err := r.take(id)
	if err != nil {
		return nil, err
	}
	if res.Type != TypeInput || res.OnSubmit == nil {
		return nil, ErrCallbackExpired
	}
	return res.OnSubmit(ctx, value), nil
}

// Sweep drops entries past the TTL and reports how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.entries {
		if entry.storedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired callbacks once a minute until the context ends.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger().Debug("expired callbacks swept", "count", n)
			}
		}
	}
}

// Pending reports the number of live callbacks, for the status surface.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
