package resource

import (
	"context"
	"fmt"

	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
)

// CatalogWriter receives catalog definitions.
type CatalogWriter interface {
	SaveTopic(ctx context.Context, t *model.Topic) error
	SaveQuest(ctx context.Context, q *model.Quest) error
	SaveTask(ctx context.Context, t *model.Task) error
}

// BadgeWriter receives badge definitions.
type BadgeWriter interface {
	SaveBadge(ctx context.Context, b *model.Badge) error
}

// Apply upserts the loaded catalog. Quests and tasks take their order index
// from their position in the file, starting at 1. Applying the same file
// twice leaves the store unchanged.
func (l *Loader) Apply(ctx context.Context, cw CatalogWriter, bw BadgeWriter, logger *zap.Logger) error {
	if l.Catalog == nil {
		return fmt.Errorf("resource: %s not loaded", l.Path)
	}
	cf := l.Catalog

	for _, b := range cf.Badges {
		if err := bw.SaveBadge(ctx, &model.Badge{
			ID: b.ID, Name: b.Name, Description: b.Description, IconURL: b.IconURL,
		}); err != nil {
			return fmt.Errorf("resource: badge %s: %w", b.ID, err)
		}
	}

	for _, tp := range cf.Topics {
		if err := cw.SaveTopic(ctx, &model.Topic{ID: tp.ID, Name: tp.Name, Description: tp.Description}); err != nil {
			return fmt.Errorf("resource: topic %s: %w", tp.ID, err)
		}
		for qi, q := range tp.Quests {
			if err := cw.SaveQuest(ctx, &model.Quest{
				ID: q.ID, TopicID: tp.ID, Name: q.Name, Description: q.Description, OrderIndex: qi + 1,
			}); err != nil {
				return fmt.Errorf("resource: quest %s: %w", q.ID, err)
			}
			questID := q.ID
			for ti, t := range q.Tasks {
				if err := cw.SaveTask(ctx, taskModel(t, &questID, ti+1)); err != nil {
					return fmt.Errorf("resource: task %s: %w", t.ID, err)
				}
			}
		}
	}

	for ti, t := range cf.Tasks {
		if err := cw.SaveTask(ctx, taskModel(t, nil, ti+1)); err != nil {
			return fmt.Errorf("resource: task %s: %w", t.ID, err)
		}
	}

	badges, topics, quests, tasks := cf.Counts()
	logger.Info("catalog seeded",
		zap.String("path", l.Path),
		zap.Int("badges", badges),
		zap.Int("topics", topics),
		zap.Int("quests", quests),
		zap.Int("tasks", tasks))
	return nil
}

func taskModel(t TaskDef, questID *string, order int) *model.Task {
	return &model.Task{
		ID:          t.ID,
		QuestID:     questID,
		Title:       t.Title,
		Description: t.Description,
		XPReward:    t.XP,
		OrderIndex:  order,
	}
}
