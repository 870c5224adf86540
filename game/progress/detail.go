package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/learnquest/game/ledger"
	"github.com/kasuganosora/learnquest/model"
)

// TaskDetail is one task of a quest with the user's state on it.
type TaskDetail struct {
	TaskID   string               `json:"task_id"`
	Title    string               `json:"task_title"`
	Status   model.ProgressStatus `json:"status"`
	GainedXP int                  `json:"gained_xp"`
}

// QuestSummary is the user's aggregate state on a quest.
type QuestSummary struct {
	Status   model.ProgressStatus `json:"status"`
	GainedXP int                  `json:"gained_xp"`
}

// QuestDetail is a started quest with every task in catalog order.
type QuestDetail struct {
	QuestID       string       `json:"quest_id"`
	QuestProgress QuestSummary `json:"quest_progress"`
	Tasks         []TaskDetail `json:"tasks"`
}

// QuestWithTaskDetail returns the user's quest record together with the
// state of each of its tasks. Tasks the user never touched are reported as
// NOT_STARTED with no XP.
func (c *Coordinator) QuestWithTaskDetail(ctx context.Context, userID, questID string) (*QuestDetail, error) {
	if _, err := c.catalog.GetQuest(ctx, questID); err != nil {
		return nil, classify(err)
	}
	qp, err := c.ledger.GetQuestProgress(ctx, userID, questID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: quest %s for user %s", ErrNotStarted, questID, userID)
		}
		return nil, err
	}

	tasks, err := c.catalog.ListTasksByQuest(ctx, questID)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	rows, err := c.ledger.ListTaskProgressIn(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byTask := make(map[string]model.UserTaskProgress, len(rows))
	for _, r := range rows {
		byTask[r.TaskID] = r
	}

	out := &QuestDetail{
		QuestID:       questID,
		QuestProgress: QuestSummary{Status: qp.Status, GainedXP: qp.GainedXP},
		Tasks:         make([]TaskDetail, 0, len(tasks)),
	}
	for _, t := range tasks {
		d := TaskDetail{TaskID: t.ID, Title: t.Title, Status: model.StatusNotStarted}
		if r, ok := byTask[t.ID]; ok {
			d.Status = r.Status
			d.GainedXP = r.GainedXP
		}
		out.Tasks = append(out.Tasks, d)
	}
	return out, nil
}
