package catalog

import (
	"context"

	"github.com/kasuganosora/learnquest/model"
)

// TaskView is a task as shown inside a topic tree.
type TaskView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
	XPReward    int    `json:"xp_reward"`
}

// QuestView is a quest with its ordered tasks.
type QuestView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OrderIndex  int        `json:"order_index"`
	Tasks       []TaskView `json:"tasks"`
}

// TopicTree is a topic with its ordered quests and tasks.
type TopicTree struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Quests      []QuestView `json:"quests"`
}

// TopicTree loads the full hierarchy below a topic in two queries.
func (s *Store) TopicTree(ctx context.Context, topicID string) (*TopicTree, error) {
	topic, err := s.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	quests, err := s.ListQuestsByTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	tree := &TopicTree{
		ID:          topic.ID,
		Name:        topic.Name,
		Description: topic.Description,
		Quests:      make([]QuestView, 0, len(quests)),
	}
	if len(quests) == 0 {
		return tree, nil
	}

	ids := make([]string, len(quests))
	for i, q := range quests {
		ids[i] = q.ID
	}
	var tasks []model.Task
	if err := s.db.WithContext(ctx).
		Where("quest_id IN ?", ids).
		Order("order_index ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	byQuest := make(map[string][]TaskView, len(quests))
	for _, t := range tasks {
		qid, _ := t.InQuest()
		byQuest[qid] = append(byQuest[qid], TaskView{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			OrderIndex:  t.OrderIndex,
			XPReward:    t.XPReward,
		})
	}

	for _, q := range quests {
		views := byQuest[q.ID]
		if views == nil {
			views = []TaskView{}
		}
		tree.Quests = append(tree.Quests, QuestView{
			ID:          q.ID,
			Name:        q.Name,
			Description: q.Description,
			OrderIndex:  q.OrderIndex,
			Tasks:       views,
		})
	}
	return tree, nil
}
