// Package ledger persists per-user task and quest progress records.
//
// A Store is bound to one *gorm.DB handle; WithTx rebinds it to a
// transaction so the progress coordinator can run several steps atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/learnquest/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no progress record exists.
var ErrNotFound = errors.New("ledger: progress not found")

// Store reads and writes progress records.
type Store struct {
	db *gorm.DB
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store whose operations run on tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func wrapNotFound(err error, kind, userID, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s progress %s/%s: %w", kind, userID, id, ErrNotFound)
	}
	return err
}

// ---- task progress ----

// GetTaskProgress returns the user's record for a task.
func (s *Store) GetTaskProgress(ctx context.Context, userID, taskID string) (*model.UserTaskProgress, error) {
	var p model.UserTaskProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err, "task", userID, taskID)
	}
	return &p, nil
}

// CreateTaskProgress inserts p unless a record for (user, task) already
// exists. p is reloaded from the stored row either way; created reports
// whether this call inserted it.
func (s *Store) CreateTaskProgress(ctx context.Context, p *model.UserTaskProgress) (bool, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "task_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	stored, err := s.GetTaskProgress(ctx, p.UserID, p.TaskID)
	if err != nil {
		return false, err
	}
	*p = *stored
	return res.RowsAffected > 0, nil
}

// SaveTaskProgress writes every field of an existing record.
func (s *Store) SaveTaskProgress(ctx context.Context, p *model.UserTaskProgress) error {
	if p.ID == "" {
		return fmt.Errorf("task progress %s/%s has no id", p.UserID, p.TaskID)
	}
	return s.db.WithContext(ctx).Save(p).Error
}

// MarkTaskCompleted moves a record to COMPLETED with the given reward.
// The update only matches rows not yet completed, so exactly one caller
// observes transitioned == true for a given record.
func (s *Store) MarkTaskCompleted(ctx context.Context, userID, taskID string, gainedXP int, at time.Time) (transitioned bool, err error) {
	res := s.db.WithContext(ctx).
		Model(&model.UserTaskProgress{}).
		Where("user_id = ? AND task_id = ? AND status <> ?", userID, taskID, model.StatusCompleted).
		Updates(map[string]interface{}{
			"status":     model.StatusCompleted,
			"gained_xp":  gainedXP,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListTaskProgressByUser returns every task record of the user.
func (s *Store) ListTaskProgressByUser(ctx context.Context, userID string) ([]model.UserTaskProgress, error) {
	var out []model.UserTaskProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListTaskProgressIn returns the user's records restricted to taskIDs.
func (s *Store) ListTaskProgressIn(ctx context.Context, userID string, taskIDs []string) ([]model.UserTaskProgress, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var out []model.UserTaskProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND task_id IN ?", userID, taskIDs).
		Find(&out).Error
	return out, err
}

// CountCompletedTasks counts the user's completed task records.
func (s *Store) CountCompletedTasks(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.UserTaskProgress{}).
		Where("user_id = ? AND status = ?", userID, model.StatusCompleted).
		Count(&n).Error
	return n, err
}

// CountCompletedTasksIn counts the user's completed records among taskIDs.
func (s *Store) CountCompletedTasksIn(ctx context.Context, userID string, taskIDs []string) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.UserTaskProgress{}).
		Where("user_id = ? AND status = ? AND task_id IN ?", userID, model.StatusCompleted, taskIDs).
		Count(&n).Error
	return n, err
}

// ---- quest progress ----

// GetQuestProgress returns the user's record for a quest.
func (s *Store) GetQuestProgress(ctx context.Context, userID, questID string) (*model.UserQuestProgress, error) {
	var p model.UserQuestProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err, "quest", userID, questID)
	}
	return &p, nil
}

// EnsureQuestProgress returns the user's quest record, creating it as
// IN_PROGRESS with no XP when absent.
func (s *Store) EnsureQuestProgress(ctx context.Context, userID, questID string) (*model.UserQuestProgress, error) {
	p := &model.UserQuestProgress{
		UserID:    userID,
		QuestID:   questID,
		Status:    model.StatusInProgress,
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "quest_id"}},
			DoNothing: true,
		}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return s.GetQuestProgress(ctx, userID, questID)
}

// AddQuestXP atomically adds amount to the record's gained XP.
func (s *Store) AddQuestXP(ctx context.Context, userID, questID string, amount int) error {
	res := s.db.WithContext(ctx).
		Model(&model.UserQuestProgress{}).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Updates(map[string]interface{}{
			"gained_xp":  gorm.Expr("gained_xp + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quest progress %s/%s: %w", userID, questID, ErrNotFound)
	}
	return nil
}

// MarkQuestCompleted moves a quest record to COMPLETED. transitioned is
// false when it was already completed.
func (s *Store) MarkQuestCompleted(ctx context.Context, userID, questID string) (transitioned bool, err error) {
	res := s.db.WithContext(ctx).
		Model(&model.UserQuestProgress{}).
		Where("user_id = ? AND quest_id = ? AND status <> ?", userID, questID, model.StatusCompleted).
		Updates(map[string]interface{}{
			"status":     model.StatusCompleted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListQuestProgressByUser returns every quest record of the user.
func (s *Store) ListQuestProgressByUser(ctx context.Context, userID string) ([]model.UserQuestProgress, error) {
	var out []model.UserQuestProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountCompletedQuests counts the user's completed quest records.
func (s *Store) CountCompletedQuests(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.UserQuestProgress{}).
		Where("user_id = ? AND status = ?", userID, model.StatusCompleted).
		Count(&n).Error
	return n, err
}
