package model

import "time"

// ProgressStatus is the lifecycle state of a progress record.
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "NOT_STARTED"
	StatusInProgress ProgressStatus = "IN_PROGRESS"
	StatusCompleted  ProgressStatus = "COMPLETED"
)

// UserTaskProgress tracks one user's state on one task.
// Once COMPLETED, GainedXP holds the task's reward at completion time.
type UserTaskProgress struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	UserID    string         `gorm:"uniqueIndex:idx_user_task;index:idx_task_progress_status,priority:1;size:64;not null" json:"user_id"`
	TaskID    string         `gorm:"uniqueIndex:idx_user_task;size:64;not null" json:"task_id"`
	Status    ProgressStatus `gorm:"index:idx_task_progress_status,priority:2;size:16;not null" json:"status"`
	GainedXP  int            `gorm:"default:0;not null" json:"gained_xp"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UserQuestProgress tracks one user's state on one quest.
// GainedXP is the sum of the rewards of the quest's completed tasks.
type UserQuestProgress struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	UserID    string         `gorm:"uniqueIndex:idx_user_quest;index:idx_quest_progress_status,priority:1;size:64;not null" json:"user_id"`
	QuestID   string         `gorm:"uniqueIndex:idx_user_quest;size:64;not null" json:"quest_id"`
	Status    ProgressStatus `gorm:"index:idx_quest_progress_status,priority:2;size:16;not null" json:"status"`
	GainedXP  int            `gorm:"default:0;not null" json:"gained_xp"`
	UpdatedAt time.Time      `json:"updated_at"`
}
