package model

import "time"

// Topic groups quests.
type Topic struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Quest groups tasks under a topic.
type Quest struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	TopicID     string    `gorm:"index:idx_quest_topic;size:64;not null" json:"topic_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	OrderIndex  int       `gorm:"default:0" json:"order_index"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Task is the atomic completable unit. QuestID is nil for stand-alone tasks,
// which never cascade into quest progress.
type Task struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	QuestID     *string   `gorm:"index:idx_task_quest;size:64" json:"quest_id"`
	Title       string    `gorm:"size:128;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	XPReward    int       `gorm:"default:0" json:"xp_reward"`
	OrderIndex  int       `gorm:"default:0" json:"order_index"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// InQuest reports whether the task belongs to a quest and returns its id.
func (t *Task) InQuest() (string, bool) {
	if t.QuestID == nil || *t.QuestID == "" {
		return "", false
	}
	return *t.QuestID, true
}
