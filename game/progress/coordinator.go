// Package progress sequences task starts and completions across the catalog,
// the progress ledger, the XP accumulator and the badge ledger.
//
// Writes for one user are serialised by a cache-backed lock and run inside
// a single database transaction. The task status transition is a
// conditional update, so a task's reward is credited at most once even if
// two completions race past the lock. Milestone badges are evaluated after
// commit and never fail the completion that triggered them.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/ledger"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/metrics"
	"github.com/kasuganosora/learnquest/model"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Catalog is the read side of the content catalog.
type Catalog interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetQuest(ctx context.Context, id string) (*model.Quest, error)
	ListTasksByQuest(ctx context.Context, questID string) ([]model.Task, error)
	CountAllTasks(ctx context.Context) (int64, error)
	CountAllQuests(ctx context.Context) (int64, error)
}

// Badges awards badges and counts a user's awards.
type Badges interface {
	Award(ctx context.Context, userID string, id badge.ID) (*model.UserBadge, bool, error)
	CountUserBadges(ctx context.Context, userID string) (int64, error)
}

// Config tunes the per-user lock.
type Config struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

// Coordinator implements the progress operations.
type Coordinator struct {
	db      *gorm.DB
	catalog Catalog
	ledger  *ledger.Store
	users   *xp.Store
	badges  Badges
	lock    *userLock
	hooks   *hook.HookCenter
	logger  *zap.Logger
}

// NewCoordinator creates a Coordinator. c may be nil, which disables the
// per-user lock and leaves only the transactional guards. hooks may be nil.
func NewCoordinator(db *gorm.DB, cat Catalog, users *xp.Store, badges Badges,
	c cache.Cache, hooks *hook.HookCenter, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &Coordinator{
		db:      db,
		catalog: cat,
		ledger:  ledger.New(db),
		users:   users,
		badges:  badges,
		lock:    &userLock{cache: c, ttl: cfg.LockTTL, wait: cfg.LockWait, logger: logger},
		hooks:   hooks,
		logger:  logger,
	}
}

// StartTask moves the user's task to IN_PROGRESS, creating the owning
// quest's progress record on first touch. Starting a task that is already
// in progress or completed returns the record unchanged.
func (c *Coordinator) StartTask(ctx context.Context, userID, taskID string) (p *model.UserTaskProgress, err error) {
	defer func() { metrics.RecordProgressOp("start_task", resultLabel(err)) }()

	task, err := c.catalog.GetTask(ctx, taskID)
	if err != nil {
		return nil, classify(err)
	}

	release, err := c.lock.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var started bool
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		led := c.ledger.WithTx(tx)
		if questID, ok := task.InQuest(); ok {
			if _, err := led.EnsureQuestProgress(ctx, userID, questID); err != nil {
				return err
			}
		}

		existing, err := led.GetTaskProgress(ctx, userID, taskID)
		switch {
		case err == nil:
			if existing.Status == model.StatusInProgress || existing.Status == model.StatusCompleted {
				p = existing
				return nil
			}
			if existing.ID == "" {
				return fmt.Errorf("%w: task progress %s/%s has no id", ErrInvalidState, userID, taskID)
			}
			existing.Status = model.StatusInProgress
			existing.UpdatedAt = time.Now()
			if err := led.SaveTaskProgress(ctx, existing); err != nil {
				return err
			}
			p, started = existing, true
			return nil
		case errors.Is(err, ledger.ErrNotFound):
			fresh := &model.UserTaskProgress{
				UserID: userID,
				TaskID: taskID,
				Status: model.StatusInProgress,
			}
			created, err := led.CreateTaskProgress(ctx, fresh)
			if err != nil {
				return err
			}
			p, started = fresh, created
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, classify(err)
	}

	if started {
		questID, _ := task.InQuest()
		c.emit(ctx, hook.Event{Type: hook.TaskStarted, UserID: userID, TaskID: taskID, QuestID: questID})
	}
	return p, nil
}

// completion carries what CompleteTask committed to the post-commit steps.
type completion struct {
	progress     *model.UserTaskProgress
	transitioned bool
	questID      string
	questDone    bool
	totalXP      int64
	reward       int
}

// CompleteTask marks a started task COMPLETED, credits its reward to the
// user and the owning quest, completes the quest when every sibling task is
// done and then evaluates milestone badges. Completing an already completed
// task returns the stored record without further effects.
func (c *Coordinator) CompleteTask(ctx context.Context, userID, taskID string) (p *model.UserTaskProgress, err error) {
	defer func() { metrics.RecordProgressOp("complete_task", resultLabel(err)) }()

	release, err := c.lock.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := c.ledger.GetTaskProgress(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s for user %s", ErrNotStarted, taskID, userID)
		}
		return nil, err
	}
	if existing.ID == "" {
		return nil, fmt.Errorf("%w: task progress %s/%s has no id", ErrInvalidState, userID, taskID)
	}
	if existing.Status == model.StatusCompleted {
		return existing, nil
	}

	task, err := c.catalog.GetTask(ctx, taskID)
	if err != nil {
		return nil, classify(err)
	}
	res := completion{reward: task.XPReward}
	if res.reward < 0 {
		res.reward = 0
	}

	// Sibling ids are read before the transaction opens; catalog reads use
	// their own connection.
	var siblings []string
	if questID, ok := task.InQuest(); ok {
		res.questID = questID
		tasks, err := c.catalog.ListTasksByQuest(ctx, questID)
		if err != nil {
			return nil, classify(err)
		}
		siblings = make([]string, 0, len(tasks))
		for _, t := range tasks {
			siblings = append(siblings, t.ID)
		}
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.completeTx(ctx, tx, userID, taskID, siblings, &res)
	})
	if err != nil {
		return nil, classify(err)
	}
	if !res.transitioned {
		return res.progress, nil
	}

	c.afterComplete(ctx, userID, taskID, &res)
	return res.progress, nil
}

func (c *Coordinator) completeTx(ctx context.Context, tx *gorm.DB, userID, taskID string, siblings []string, res *completion) error {
	led := c.ledger.WithTx(tx)

	ok, err := led.MarkTaskCompleted(ctx, userID, taskID, res.reward, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Another completion won the race; report its record.
		res.progress, err = led.GetTaskProgress(ctx, userID, taskID)
		return err
	}
	res.transitioned = true

	if res.totalXP, err = c.users.Credit(ctx, tx, userID, res.reward); err != nil {
		return err
	}

	if res.questID != "" {
		if _, err := led.EnsureQuestProgress(ctx, userID, res.questID); err != nil {
			return err
		}
		if err := led.AddQuestXP(ctx, userID, res.questID, res.reward); err != nil {
			return err
		}
		done, err := led.CountCompletedTasksIn(ctx, userID, siblings)
		if err != nil {
			return err
		}
		if done == int64(len(siblings)) {
			if res.questDone, err = led.MarkQuestCompleted(ctx, userID, res.questID); err != nil {
				return err
			}
		}
	}

	res.progress, err = led.GetTaskProgress(ctx, userID, taskID)
	return err
}

// afterComplete publishes the committed completion and evaluates
// milestones. Quest milestones run before task milestones.
func (c *Coordinator) afterComplete(ctx context.Context, userID, taskID string, res *completion) {
	metrics.RecordXP(res.reward)
	c.users.Publish(ctx, userID, res.totalXP)

	c.emit(ctx, hook.Event{
		Type: hook.TaskCompleted, UserID: userID, TaskID: taskID, QuestID: res.questID,
		XP: res.reward, TotalXP: res.totalXP,
	})
	if res.reward > 0 {
		c.emit(ctx, hook.Event{Type: hook.XPGained, UserID: userID, TaskID: taskID, XP: res.reward, TotalXP: res.totalXP})
	}
	if res.questDone {
		c.logger.Info("quest completed", zap.String("user_id", userID), zap.String("quest_id", res.questID))
		c.emit(ctx, hook.Event{Type: hook.QuestCompleted, UserID: userID, QuestID: res.questID, TotalXP: res.totalXP})
		c.checkQuestMilestones(ctx, userID)
	}
	c.checkTaskMilestones(ctx, userID)
}

// GetTaskProgress returns the user's record for a task.
func (c *Coordinator) GetTaskProgress(ctx context.Context, userID, taskID string) (*model.UserTaskProgress, error) {
	p, err := c.ledger.GetTaskProgress(ctx, userID, taskID)
	return p, classify(err)
}

// GetQuestProgress returns the user's record for a quest.
func (c *Coordinator) GetQuestProgress(ctx context.Context, userID, questID string) (*model.UserQuestProgress, error) {
	p, err := c.ledger.GetQuestProgress(ctx, userID, questID)
	return p, classify(err)
}

// ListUserTaskProgress returns every task record of the user.
func (c *Coordinator) ListUserTaskProgress(ctx context.Context, userID string) ([]model.UserTaskProgress, error) {
	out, err := c.ledger.ListTaskProgressByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.UserTaskProgress{}
	}
	return out, nil
}

// ListUserQuestProgress returns every quest record of the user.
func (c *Coordinator) ListUserQuestProgress(ctx context.Context, userID string) ([]model.UserQuestProgress, error) {
	out, err := c.ledger.ListQuestProgressByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.UserQuestProgress{}
	}
	return out, nil
}
