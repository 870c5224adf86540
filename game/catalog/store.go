package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kasuganosora/learnquest/metrics"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a topic, quest or task does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalid is returned when a definition fails validation.
	ErrInvalid = errors.New("catalog: invalid definition")
)

const defaultCacheSize = 1024

// Store serves topic, quest and task definitions. Single task and quest
// lookups go through an LRU that every write invalidates.
type Store struct {
	db     *gorm.DB
	cache  *lru.Cache
	logger *zap.Logger

	// gen counts writes; a lookup only fills the cache if no write landed
	// while it was reading.
	mu  sync.Mutex
	gen uint64
}

// NewStore creates a Store with an LRU of cacheSize entries.
func NewStore(db *gorm.DB, cacheSize int, logger *zap.Logger) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: cache, logger: logger}, nil
}

func taskKey(id string) string  { return "task:" + id }
func questKey(id string) string { return "quest:" + id }

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// remember caches v unless a write happened after gen was sampled.
func (s *Store) remember(key string, v interface{}, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.cache.Add(key, v)
	}
}

// forget drops keys, or the whole cache when none are given.
func (s *Store) forget(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if len(keys) == 0 {
		s.forget()
		return
	}
	for _, k := range keys {
		s.cache.Remove(k)
	}
}

// copyTask detaches QuestID so callers never share it with the cache.
func copyTask(t model.Task) model.Task {
	if t.QuestID != nil {
		q := *t.QuestID
		t.QuestID = &q
	}
	return t
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

// ---- tasks ----

// GetTask returns the task definition with the given id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if v, ok := s.cache.Get(taskKey(id)); ok {
		metrics.RecordCatalogLookup(true)
		t := copyTask(v.(model.Task))
		return &t, nil
	}
	metrics.RecordCatalogLookup(false)

	gen := s.generation()
	var t model.Task
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	s.remember(taskKey(id), copyTask(t), gen)
	return &t, nil
}

// ListTasksByQuest returns the quest's tasks ordered by order_index.
func (s *Store) ListTasksByQuest(ctx context.Context, questID string) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("quest_id = ?", questID).
		Order("order_index ASC, id ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListTasks returns every task definition.
func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).Order("order_index ASC, id ASC").Find(&tasks).Error
	return tasks, err
}

// CountAllTasks returns the number of task definitions.
func (s *Store) CountAllTasks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Task{}).Count(&n).Error
	return n, err
}

// SaveTask creates or replaces a task. A quest reference must exist.
func (s *Store) SaveTask(ctx context.Context, t *model.Task) error {
	if t.Title == "" {
		return fmt.Errorf("%w: task title is required", ErrInvalid)
	}
	if t.XPReward < 0 {
		return fmt.Errorf("%w: xp_reward must be non-negative", ErrInvalid)
	}
	if questID, ok := t.InQuest(); ok {
		if _, err := s.GetQuest(ctx, questID); err != nil {
			return err
		}
	} else {
		t.QuestID = nil
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(t).Error; err != nil {
		return err
	}
	s.forget(taskKey(t.ID))
	return nil
}

// DeleteTask removes a task definition.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	s.forget(taskKey(id))
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- quests ----

// GetQuest returns the quest definition with the given id.
func (s *Store) GetQuest(ctx context.Context, id string) (*model.Quest, error) {
	if v, ok := s.cache.Get(questKey(id)); ok {
		metrics.RecordCatalogLookup(true)
		q := v.(model.Quest)
		return &q, nil
	}
	metrics.RecordCatalogLookup(false)

	gen := s.generation()
	var q model.Quest
	if err := s.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "quest", id)
	}
	s.remember(questKey(id), q, gen)
	return &q, nil
}

// ListQuests returns every quest definition.
func (s *Store) ListQuests(ctx context.Context) ([]model.Quest, error) {
	var quests []model.Quest
	err := s.db.WithContext(ctx).Order("topic_id ASC, order_index ASC, id ASC").Find(&quests).Error
	return quests, err
}

// ListQuestsByTopic returns the topic's quests ordered by order_index.
func (s *Store) ListQuestsByTopic(ctx context.Context, topicID string) ([]model.Quest, error) {
	var quests []model.Quest
	err := s.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("order_index ASC, id ASC").
		Find(&quests).Error
	return quests, err
}

// CountAllQuests returns the number of quest definitions.
func (s *Store) CountAllQuests(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Quest{}).Count(&n).Error
	return n, err
}

// SaveQuest creates or replaces a quest. Its topic must exist.
func (s *Store) SaveQuest(ctx context.Context, q *model.Quest) error {
	if q.Name == "" {
		return fmt.Errorf("%w: quest name is required", ErrInvalid)
	}
	if _, err := s.GetTopic(ctx, q.TopicID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(q).Error; err != nil {
		return err
	}
	s.forget(questKey(q.ID))
	return nil
}

// DeleteQuest removes a quest together with its tasks.
func (s *Store) DeleteQuest(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteQuestTx(tx, id)
	})
	// Task entries of the quest are not tracked individually.
	s.forget()
	return err
}

func deleteQuestTx(tx *gorm.DB, id string) error {
	if err := tx.Delete(&model.Task{}, "quest_id = ?", id).Error; err != nil {
		return err
	}
	res := tx.Delete(&model.Quest{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quest %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- topics ----

// GetTopic returns the topic with the given id.
func (s *Store) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	var t model.Topic
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "topic", id)
	}
	return &t, nil
}

// ListTopics returns one page of topics. size <= 0 returns all of them.
func (s *Store) ListTopics(ctx context.Context, page, size int) ([]model.Topic, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if size > 0 {
		if page < 0 {
			page = 0
		}
		q = q.Offset(page * size).Limit(size)
	}
	var topics []model.Topic
	err := q.Find(&topics).Error
	return topics, err
}

// SaveTopic creates or replaces a topic.
func (s *Store) SaveTopic(ctx context.Context, t *model.Topic) error {
	if t.Name == "" {
		return fmt.Errorf("%w: topic name is required", ErrInvalid)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(t).Error
}

// DeleteTopic removes a topic with all of its quests and their tasks.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var questIDs []string
		if err := tx.Model(&model.Quest{}).Where("topic_id = ?", id).Pluck("id", &questIDs).Error; err != nil {
			return err
		}
		for _, qid := range questIDs {
			if err := deleteQuestTx(tx, qid); err != nil {
				return err
			}
		}
		res := tx.Delete(&model.Topic{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("topic %s: %w", id, ErrNotFound)
		}
		return nil
	})
	s.forget()
	if err == nil {
		s.logger.Info("topic deleted", zap.String("topic_id", id))
	}
	return err
}
