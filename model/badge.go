package model

import "time"

// Badge is an unlockable achievement definition.
type Badge struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	Name        string `gorm:"size:64;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	IconURL     string `gorm:"size:255" json:"icon_url"`
}

// UserBadge records that a user holds a badge. (user_id, badge_id) is unique.
type UserBadge struct {
	ID       string    `gorm:"primaryKey;size:64" json:"id"`
	UserID   string    `gorm:"uniqueIndex:idx_user_badge;size:64;not null" json:"user_id"`
	BadgeID  string    `gorm:"uniqueIndex:idx_user_badge;size:64;not null" json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}
