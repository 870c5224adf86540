// Package badge holds badge definitions and the per-user award ledger.
package badge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ID identifies a badge definition.
type ID string

// Built-in milestone badges.
const (
	FirstStep          ID = "badge-1"
	TaskWarrior        ID = "badge-3"
	TaskLegend         ID = "badge-4"
	QuestStarter       ID = "badge-5"
	QuestExplorer      ID = "badge-6"
	QuestCompletionist ID = "badge-7"
	LegendMaster       ID = "badge-8"
	JavaMaster         ID = "badge-9"
)

var (
	// ErrNotFound is returned for an unknown badge or a missing award.
	ErrNotFound = errors.New("badge: not found")
	// ErrInvalid is returned when a definition fails validation.
	ErrInvalid = errors.New("badge: invalid definition")
)

// Defaults returns the built-in badge definitions.
func Defaults() []model.Badge {
	return []model.Badge{
		{ID: string(FirstStep), Name: "First Step", Description: "Complete your first task"},
		{ID: string(TaskWarrior), Name: "Task Warrior", Description: "Complete 5 tasks"},
		{ID: string(TaskLegend), Name: "Task Legend", Description: "Complete 10 tasks"},
		{ID: string(QuestStarter), Name: "Quest Starter", Description: "Complete your first quest"},
		{ID: string(QuestExplorer), Name: "Quest Explorer", Description: "Complete 3 quests"},
		{ID: string(QuestCompletionist), Name: "Quest God", Description: "Complete every quest in the catalog"},
		{ID: string(LegendMaster), Name: "Legend Master", Description: "Complete every task and every quest"},
		{ID: string(JavaMaster), Name: "Java Master", Description: "Complete every quest"},
	}
}

// Store manages badge definitions and awards.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a Store.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureDefaults inserts any missing built-in badge. Existing rows, which
// an operator may have renamed, are left alone.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	defaults := Defaults()
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&defaults)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("default badges seeded", zap.Int64("inserted", res.RowsAffected))
	}
	return nil
}

// ListBadges returns every badge definition ordered by id.
func (s *Store) ListBadges(ctx context.Context) ([]model.Badge, error) {
	var out []model.Badge
	err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// GetBadge returns one badge definition.
func (s *Store) GetBadge(ctx context.Context, id ID) (*model.Badge, error) {
	var b model.Badge
	if err := s.db.WithContext(ctx).First(&b, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("badge %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

// SaveBadge creates or replaces a badge definition. An empty ID is assigned.
func (s *Store) SaveBadge(ctx context.Context, b *model.Badge) error {
	if b.Name == "" {
		return fmt.Errorf("%w: badge name is required", ErrInvalid)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(b).Error
}

// DeleteBadge removes a definition together with every award of it.
func (s *Store) DeleteBadge(ctx context.Context, id ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("badge_id = ?", string(id)).Delete(&model.UserBadge{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Badge{}, "id = ?", string(id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("badge %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// GetUserBadge returns the user's award of a badge.
func (s *Store) GetUserBadge(ctx context.Context, userID string, id ID) (*model.UserBadge, error) {
	var ub model.UserBadge
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND badge_id = ?", userID, string(id)).
		First(&ub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user badge %s/%s: %w", userID, id, ErrNotFound)
		}
		return nil, err
	}
	return &ub, nil
}

// Award gives the badge to the user. Awarding is idempotent: when the user
// already holds it the existing row is returned with awarded == false. The
// unique (user, badge) index arbitrates concurrent awards.
func (s *Store) Award(ctx context.Context, userID string, id ID) (ub *model.UserBadge, awarded bool, err error) {
	if _, err := s.GetBadge(ctx, id); err != nil {
		return nil, false, err
	}
	row := &model.UserBadge{UserID: userID, BadgeID: string(id), EarnedAt: time.Now()}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return row, true, nil
	}
	existing, err := s.GetUserBadge(ctx, userID, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Revoke removes the user's award of a badge.
func (s *Store) Revoke(ctx context.Context, userID string, id ID) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND badge_id = ?", userID, string(id)).
		Delete(&model.UserBadge{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user badge %s/%s: %w", userID, id, ErrNotFound)
	}
	return nil
}

// Earned is an award joined with its badge definition.
type Earned struct {
	model.Badge
	EarnedAt time.Time `json:"earned_at"`
}

// ListUserBadges returns the user's badges in the order they were earned.
func (s *Store) ListUserBadges(ctx context.Context, userID string) ([]Earned, error) {
	var out []Earned
	err := s.db.WithContext(ctx).
		Table("user_badges").
		Select("badges.id, badges.name, badges.description, badges.icon_url, user_badges.earned_at").
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.earned_at ASC, badges.id ASC").
		Scan(&out).Error
	return out, err
}

// CountUserBadges returns how many badges the user holds.
func (s *Store) CountUserBadges(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.UserBadge{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}
