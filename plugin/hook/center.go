package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInterrupt signals that a handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Progress event names.
const (
	TaskStarted    = "task_started"
	TaskCompleted  = "task_completed"
	QuestCompleted = "quest_completed"
	XPGained       = "xp_gained"
	BadgeAwarded   = "badge_awarded"
)

// Events lists every event the progress coordinator emits.
var Events = []string{TaskStarted, TaskCompleted, QuestCompleted, XPGained, BadgeAwarded}

// Event is the payload delivered to handlers. Fields irrelevant to a given
// event type are left zero.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"user_id"`
	TaskID  string    `json:"task_id,omitempty"`
	QuestID string    `json:"quest_id,omitempty"`
	BadgeID string    `json:"badge_id,omitempty"`
	XP      int       `json:"xp,omitempty"`
	TotalXP int64     `json:"total_xp,omitempty"`
	At      time.Time `json:"at"`
}

// HookFn handles one event. Returning ErrInterrupt stops later handlers;
// any other error is collected and the chain continues.
type HookFn func(ctx context.Context, ev Event) error

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds a HookFn for the given event with the given priority (lower runs first).
// name is used for Unregister.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := append(hc.hooks[event], &hookEntry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// RegisterAll registers fn for every event in events.
func (hc *HookCenter) RegisterAll(events []string, priority int, name string, fn HookFn) {
	for _, ev := range events {
		hc.Register(ev, priority, name, fn)
	}
}

// Unregister removes all hooks with the given name for the given event and
// reports how many were removed.
func (hc *HookCenter) Unregister(event, name string) int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	kept := without(hc.hooks[event], name)
	removed := len(hc.hooks[event]) - len(kept)
	hc.hooks[event] = kept
	return removed
}

// UnregisterAll removes all hooks registered with the given name across all
// events and reports how many were removed.
func (hc *HookCenter) UnregisterAll(name string) int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	removed := 0
	for event, entries := range hc.hooks {
		kept := without(entries, name)
		removed += len(entries) - len(kept)
		hc.hooks[event] = kept
	}
	return removed
}

func without(entries []*hookEntry, name string) []*hookEntry {
	out := make([]*hookEntry, 0, len(entries))
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many handlers are registered for event.
func (hc *HookCenter) Count(event string) int {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hooks[event])
}

// Trigger runs all handlers for ev.Type in priority order. A handler panic
// is converted to an error so one faulty listener cannot break the caller.
// The returned error joins every handler failure, and is ErrInterrupt when
// a handler stopped the chain.
func (hc *HookCenter) Trigger(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	hc.mu.RLock()
	entries := make([]*hookEntry, len(hc.hooks[ev.Type]))
	copy(entries, hc.hooks[ev.Type])
	hc.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		err := safeCall(ctx, e, ev)
		if errors.Is(err, ErrInterrupt) {
			return err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeCall(ctx context.Context, e *hookEntry, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s panicked: %v", e.name, r)
		}
	}()
	if err := e.fn(ctx, ev); err != nil && !errors.Is(err, ErrInterrupt) {
		return fmt.Errorf("hook %s: %w", e.name, err)
	} else if err != nil {
		return err
	}
	return nil
}
