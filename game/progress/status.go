package progress

import (
	"context"

	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompletionStatus summarises a user's progress against the whole catalog.
type CompletionStatus struct {
	UserID             string `json:"user_id"`
	TotalXP            int64  `json:"total_xp"`
	TasksCompleted     int64  `json:"tasks_completed"`
	TasksTotal         int64  `json:"tasks_total"`
	QuestsCompleted    int64  `json:"quests_completed"`
	QuestsTotal        int64  `json:"quests_total"`
	BadgesEarned       int64  `json:"badges_earned"`
	AllTasksCompleted  bool   `json:"all_tasks_completed"`
	AllQuestsCompleted bool   `json:"all_quests_completed"`
	IsFullyCompleted   bool   `json:"is_fully_completed"`
}

// CompletionStatus gathers the user's counts concurrently and derives the
// completion flags. An empty catalog never counts as completed.
func (c *Coordinator) CompletionStatus(ctx context.Context, userID string) (st *CompletionStatus, err error) {
	defer func() { metrics.RecordProgressOp("completion_status", resultLabel(err)) }()

	st = &CompletionStatus{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.TasksCompleted, err = c.ledger.CountCompletedTasks(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		st.QuestsCompleted, err = c.ledger.CountCompletedQuests(gctx, userID)
		return err
	})
	g.Go(func() error {
		u, err := c.users.GetUser(gctx, userID)
		if err != nil {
			return err
		}
		st.TotalXP = u.TotalXP
		return nil
	})
	g.Go(func() (err error) {
		st.BadgesEarned, err = c.badges.CountUserBadges(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		st.TasksTotal, err = c.catalog.CountAllTasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.QuestsTotal, err = c.catalog.CountAllQuests(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classify(err)
	}

	st.AllTasksCompleted = st.TasksTotal > 0 && st.TasksCompleted == st.TasksTotal
	st.AllQuestsCompleted = st.QuestsTotal > 0 && st.QuestsCompleted == st.QuestsTotal
	st.IsFullyCompleted = st.AllTasksCompleted && st.AllQuestsCompleted
	return st, nil
}

// AwardMasteryBadges grants LegendMaster when the user has completed the
// whole catalog and JavaMaster when every quest is completed, then returns
// the refreshed status. Each badge is gated only on its own flag: JavaMaster
// does not wait for LegendMaster, so finishing every quest earns it even
// while stand-alone tasks remain open.
func (c *Coordinator) AwardMasteryBadges(ctx context.Context, userID string) (*CompletionStatus, error) {
	st, err := c.CompletionStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	var due []badge.ID
	if st.IsFullyCompleted {
		due = append(due, badge.LegendMaster)
	}
	if st.AllQuestsCompleted {
		due = append(due, badge.JavaMaster)
	}
	if len(due) == 0 {
		return st, nil
	}

	granted := c.awardAll(ctx, userID, due)
	if len(granted) == 0 {
		return st, nil
	}
	c.logger.Info("mastery badges awarded", zap.String("user_id", userID), zap.Int("count", len(granted)))
	return c.CompletionStatus(ctx, userID)
}
