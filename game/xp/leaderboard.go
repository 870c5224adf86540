package xp

import (
	"context"

	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one leaderboard row.
type Entry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	TotalXP int64  `json:"total_xp"`
}

// Publish pushes a user's committed total into the leaderboard. Failures
// are logged only; RefreshLeaderboard repairs drift.
func (s *Store) Publish(ctx context.Context, userID string, total int64) {
	s.publish(ctx, userID, total)
}

func (s *Store) publish(ctx context.Context, userID string, total int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ZAdd(ctx, LeaderboardKey, float64(total), userID); err != nil {
		s.logger.Warn("leaderboard update failed",
			zap.String("user_id", userID), zap.Int64("total_xp", total), zap.Error(err))
	}
}

// TopXP returns the highest totals. It reads the cached leaderboard and
// falls back to the database when the cache is empty or unavailable.
func (s *Store) TopXP(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if s.cache == nil {
		return s.topFromDB(ctx, limit)
	}
	members, err := s.cache.ZRevRangeWithScores(ctx, LeaderboardKey, 0, int64(limit-1))
	if err != nil {
		s.logger.Warn("leaderboard read failed, using database", zap.Error(err))
	}
	if err != nil || len(members) == 0 {
		return s.topFromDB(ctx, limit)
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	out := make([]Entry, 0, len(members))
	for _, m := range members {
		name, ok := names[m.Member]
		if !ok {
			continue // deleted since the last refresh
		}
		out = append(out, Entry{Rank: len(out) + 1, UserID: m.Member, Name: name, TotalXP: int64(m.Score)})
	}
	return out, nil
}

// Score returns one user's total. The leaderboard answers when it holds the
// user; otherwise the database does and the entry is republished.
func (s *Store) Score(ctx context.Context, userID string) (int64, error) {
	if s.cache != nil {
		score, err := s.cache.ZScore(ctx, LeaderboardKey, userID)
		if err == nil {
			return int64(score), nil
		}
		if !cache.IsNotFound(err) {
			s.logger.Warn("leaderboard score read failed, using database",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, u.ID, u.TotalXP)
	return u.TotalXP, nil
}

func (s *Store) topFromDB(ctx context.Context, limit int) ([]Entry, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).
		Order("total_xp DESC, id ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(users))
	for i, u := range users {
		out[i] = Entry{Rank: i + 1, UserID: u.ID, Name: u.Name, TotalXP: u.TotalXP}
	}
	return out, nil
}

// RefreshLeaderboard rewrites every user's score from the database. It is a
// no-op without a cache.
func (s *Store) RefreshLeaderboard(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	var users []model.User
	count := 0
	res := s.db.WithContext(ctx).
		Select("id", "total_xp").
		FindInBatches(&users, 500, func(_ *gorm.DB, _ int) error {
			for _, u := range users {
				if err := s.cache.ZAdd(ctx, LeaderboardKey, float64(u.TotalXP), u.ID); err != nil {
					return err
				}
			}
			count += len(users)
			return nil
		})
	if res.Error != nil {
		return res.Error
	}
	s.logger.Info("leaderboard refreshed", zap.Int("users", count))
	return nil
}
