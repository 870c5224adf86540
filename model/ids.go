package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (t *Topic) BeforeCreate(*gorm.DB) error            { newID(&t.ID); return nil }
func (q *Quest) BeforeCreate(*gorm.DB) error            { newID(&q.ID); return nil }
func (t *Task) BeforeCreate(*gorm.DB) error             { newID(&t.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error             { newID(&u.ID); return nil }
func (b *Badge) BeforeCreate(*gorm.DB) error            { newID(&b.ID); return nil }
func (ub *UserBadge) BeforeCreate(*gorm.DB) error       { newID(&ub.ID); return nil }
func (p *UserTaskProgress) BeforeCreate(*gorm.DB) error { newID(&p.ID); return nil }
func (p *UserQuestProgress) BeforeCreate(*gorm.DB) error {
	newID(&p.ID)
	return nil
}
