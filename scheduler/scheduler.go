package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/learnquest/metrics"
	"go.uber.org/zap"
)

// ErrUnknownTask is returned by RunNow and Remove for an unregistered name.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// DefaultInterval replaces a non-positive ticker interval.
const DefaultInterval = time.Minute

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo describes a registered ticker for the admin API.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler manages periodic tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
	fn     TaskFn
	runMu  sync.Mutex // one run of a task at a time

	statMu sync.Mutex
	info   TaskInfo
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	if interval <= 0 {
		s.logger.Warn("non-positive scheduler interval, using default",
			zap.String("name", name), zap.Duration("interval", interval))
		interval = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		fn:     fn,
		info:   TaskInfo{Name: name, Interval: interval},
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				_ = s.run(name, entry)
			case <-entry.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// run executes one invocation with panic recovery and bookkeeping.
func (s *Scheduler) run(name string, entry *tickerEntry) (err error) {
	entry.runMu.Lock()
	defer entry.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		if err != nil {
			s.logger.Error("scheduler task failed", zap.String("task", name), zap.Error(err))
		}
		metrics.RecordSchedulerRun(name, time.Since(start), err == nil)

		entry.statMu.Lock()
		entry.info.Runs++
		entry.info.LastRun = start
		entry.info.LastError = ""
		if err != nil {
			entry.info.Failures++
			entry.info.LastError = err.Error()
		}
		entry.statMu.Unlock()
	}()
	return entry.fn(s.ctx)
}

// RunNow executes the named task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	entry, ok := s.tickers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(name, entry)
}

// Remove stops and removes a ticker task by name. It returns ErrUnknownTask
// when nothing is registered under name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tickers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	close(entry.stopCh)
	delete(s.tickers, name)
	return nil
}

// Stop stops all tasks and cancels the context handed to running ones.
func (s *Scheduler) Stop() {
	s.cancel()
}

// List returns a snapshot of every registered ticker, sorted by name.
func (s *Scheduler) List() []TaskInfo {
	s.mu.Lock()
	entries := make([]*tickerEntry, 0, len(s.tickers))
	for _, e := range s.tickers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		e.statMu.Lock()
		out = append(out, e.info)
		e.statMu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
