package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/model"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry sources.
const (
	SourceAPI   = "api"
	SourceEvent = "event"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	UserID     string
	Source     string
	Action     string
	Subject    string
	Request    interface{}
	Response   interface{}
	Error      string
	IP         string
	DurationMs int
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. Entries logged after Stop
// or while the queue is full are dropped.
func (svc *Service) Log(entry AuditEntry) {
	if svc.stopped.Load() {
		return
	}
	if entry.Source == "" {
		entry.Source = SourceAPI
	}
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		Source:     entry.Source,
		Action:     entry.Action,
		Subject:    entry.Subject,
		Request:    marshalJSON(entry.Request),
		Response:   marshalJSON(entry.Response),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("user_id", entry.UserID))
	}
}

func marshalJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Hook records coordinator events. Register it on every progress event.
func (svc *Service) Hook(ctx context.Context, ev hook.Event) error {
	svc.Log(AuditEntry{
		TraceID:  middleware.TraceIDFromContext(ctx),
		UserID:   ev.UserID,
		Source:   SourceEvent,
		Action:   ev.Type,
		Subject:  subjectOf(ev),
		Response: ev,
	})
	return nil
}

// subjectOf picks the most specific catalog id an event refers to.
func subjectOf(ev hook.Event) string {
	switch {
	case ev.BadgeID != "":
		return ev.BadgeID
	case ev.TaskID != "":
		return ev.TaskID
	default:
		return ev.QuestID
	}
}

// Recent returns the newest audit rows, optionally filtered by user.
func (svc *Service) Recent(ctx context.Context, userID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []model.AuditLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished and is safe to call twice.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() {
		svc.stopped.Store(true)
		close(svc.stopCh)
	})
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, batchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed",
				zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
