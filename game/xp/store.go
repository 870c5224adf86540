// Package xp owns user records and their running experience totals, and
// mirrors the totals into a cache-backed leaderboard.
package xp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LeaderboardKey is the sorted set holding user totals.
const LeaderboardKey = "ranking:xp"

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("xp: user not found")
	// ErrDuplicate is returned when a user's email is already taken.
	ErrDuplicate = errors.New("xp: email already registered")
	// ErrInvalid is returned for malformed user input.
	ErrInvalid = errors.New("xp: invalid user")
)

// Store manages users and their XP totals.
type Store struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// New creates a Store. c may be nil, in which case the leaderboard is not
// maintained and rankings are read from the database.
func New(db *gorm.DB, c cache.Cache, logger *zap.Logger) *Store {
	return &Store{db: db, cache: c, logger: logger}
}

func userNotFound(err error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return err
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(s.db.WithContext(ctx), id)
}

// GetUserTx reads a user through tx.
func (s *Store) GetUserTx(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	return getUser(tx.WithContext(ctx), id)
}

func getUser(db *gorm.DB, id string) (*model.User, error) {
	var u model.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return nil, userNotFound(err, id)
	}
	return &u, nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", normalizeEmail(email)).Error
	if err != nil {
		return nil, userNotFound(err, email)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user with zero XP.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrInvalid)
	}
	u.TotalXP = 0
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %w", u.Email, ErrDuplicate)
		}
		return err
	}
	s.publish(ctx, u.ID, u.TotalXP)
	return nil
}

// SaveUser updates a user's profile fields. TotalXP is never written here;
// it only moves through Credit.
func (s *Store) SaveUser(ctx context.Context, u *model.User) error {
	updates := map[string]interface{}{"name": u.Name}
	if u.Email != "" {
		updates["email"] = normalizeEmail(u.Email)
	}
	if u.PasswordHash != "" {
		updates["password_hash"] = u.PasswordHash
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", u.ID).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %w", u.Email, ErrDuplicate)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// ListUsers returns one page of users. size <= 0 returns all.
func (s *Store) ListUsers(ctx context.Context, page, size int) ([]model.User, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if size > 0 {
		if page < 0 {
			page = 0
		}
		q = q.Offset(page * size).Limit(size)
	}
	var users []model.User
	err := q.Find(&users).Error
	return users, err
}

// DeleteUser removes a user with all of their progress and badges.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&model.UserTaskProgress{}, &model.UserQuestProgress{}, &model.UserBadge{}} {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&model.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.ZRem(ctx, LeaderboardKey, id); err != nil {
		s.logger.Warn("leaderboard remove failed", zap.String("user_id", id), zap.Error(err))
	}
	return nil
}

// Credit atomically adds amount to the user's total inside tx and returns
// the new total. amount must be non-negative.
func (s *Store) Credit(ctx context.Context, tx *gorm.DB, userID string, amount int) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative credit %d", ErrInvalid, amount)
	}
	db := tx.WithContext(ctx)
	res := db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("total_xp", gorm.Expr("total_xp + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	var total int64
	if err := db.Model(&model.User{}).Where("id = ?", userID).Pluck("total_xp", &total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
