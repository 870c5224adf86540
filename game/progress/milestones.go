package progress

import (
	"context"

	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/metrics"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"go.uber.org/zap"
)

// Milestone awards Badge at the moment a live count equals Count.
type Milestone struct {
	Count int64
	Badge badge.ID
}

// TaskMilestones are keyed on the user's completed task count.
var TaskMilestones = []Milestone{
	{Count: 1, Badge: badge.FirstStep},
	{Count: 5, Badge: badge.TaskWarrior},
	{Count: 10, Badge: badge.TaskLegend},
}

// QuestMilestones are keyed on the user's completed quest count. The
// completionist milestone depends on the catalog size and is added at
// evaluation time.
var QuestMilestones = []Milestone{
	{Count: 1, Badge: badge.QuestStarter},
	{Count: 3, Badge: badge.QuestExplorer},
}

// reached returns the badges whose threshold equals count exactly.
func reached(table []Milestone, count int64) []badge.ID {
	var out []badge.ID
	for _, m := range table {
		if m.Count == count {
			out = append(out, m.Badge)
		}
	}
	return out
}

func (c *Coordinator) questMilestones(ctx context.Context) []Milestone {
	table := append([]Milestone(nil), QuestMilestones...)
	total, err := c.catalog.CountAllQuests(ctx)
	if err != nil {
		c.logger.Warn("count quests for milestones failed", zap.Error(err))
		return table
	}
	if total > 0 {
		table = append(table, Milestone{Count: total, Badge: badge.QuestCompletionist})
	}
	return table
}

// checkQuestMilestones evaluates quest milestones against the live count.
// Failures are logged and never surface to the caller.
func (c *Coordinator) checkQuestMilestones(ctx context.Context, userID string) {
	n, err := c.ledger.CountCompletedQuests(ctx, userID)
	if err != nil {
		c.logger.Warn("count completed quests failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c.awardAll(ctx, userID, reached(c.questMilestones(ctx), n))
}

// checkTaskMilestones evaluates task milestones against the live count.
func (c *Coordinator) checkTaskMilestones(ctx context.Context, userID string) {
	n, err := c.ledger.CountCompletedTasks(ctx, userID)
	if err != nil {
		c.logger.Warn("count completed tasks failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c.awardAll(ctx, userID, reached(TaskMilestones, n))
}

// awardAll awards each badge best-effort and reports the newly granted ones.
func (c *Coordinator) awardAll(ctx context.Context, userID string, ids []badge.ID) []badge.ID {
	var granted []badge.ID
	for _, id := range ids {
		_, awarded, err := c.badges.Award(ctx, userID, id)
		if err != nil {
			c.logger.Warn("badge award failed",
				zap.String("user_id", userID),
				zap.String("badge_id", string(id)),
				zap.Error(err))
			continue
		}
		if !awarded {
			continue
		}
		granted = append(granted, id)
		metrics.RecordBadge(string(id))
		c.emit(ctx, hook.Event{Type: hook.BadgeAwarded, UserID: userID, BadgeID: string(id)})
	}
	return granted
}
