package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/learnquest/model"
	"github.com/kasuganosora/learnquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(db), db
}

func inProgress(user, task string) *model.UserTaskProgress {
	return &model.UserTaskProgress{UserID: user, TaskID: task, Status: model.StatusInProgress}
}

func TestGetTaskProgress_NotFound(t *testing.T) {
	s, _ := newTestLedger(t)
	_, err := s.GetTaskProgress(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTaskProgress_InsertOnce(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()

	first := inProgress("u1", "t1")
	created, err := s.CreateTaskProgress(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, first.ID)

	second := &model.UserTaskProgress{UserID: "u1", TaskID: "t1", Status: model.StatusCompleted, GainedXP: 99}
	created, err = s.CreateTaskProgress(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID, "reloaded from the existing row")
	assert.Equal(t, model.StatusInProgress, second.Status)
	assert.Zero(t, second.GainedXP)
}

func TestSaveTaskProgress_RequiresID(t *testing.T) {
	s, _ := newTestLedger(t)
	err := s.SaveTaskProgress(context.Background(), inProgress("u1", "t1"))
	assert.Error(t, err)
}

func TestSaveTaskProgress_Updates(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()

	p := &model.UserTaskProgress{UserID: "u1", TaskID: "t1", Status: model.StatusNotStarted}
	_, err := s.CreateTaskProgress(ctx, p)
	require.NoError(t, err)

	p.Status = model.StatusInProgress
	require.NoError(t, s.SaveTaskProgress(ctx, p))

	got, err := s.GetTaskProgress(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestMarkTaskCompleted_ExactlyOnce(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := s.CreateTaskProgress(ctx, inProgress("u1", "t1"))
	require.NoError(t, err)

	now := time.Now()
	ok, err := s.MarkTaskCompleted(ctx, "u1", "t1", 10, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkTaskCompleted(ctx, "u1", "t1", 50, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetTaskProgress(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.GainedXP, "second call must not overwrite the snapshot")
}

func TestMarkTaskCompleted_ConcurrentSingleWinner(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := s.CreateTaskProgress(ctx, inProgress("u1", "t1"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkTaskCompleted(ctx, "u1", "t1", 10, time.Now())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCounts(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	for _, task := range []string{"t1", "t2", "t3"} {
		_, err := s.CreateTaskProgress(ctx, inProgress("u1", task))
		require.NoError(t, err)
	}
	_, err := s.CreateTaskProgress(ctx, inProgress("u2", "t1"))
	require.NoError(t, err)

	_, _ = s.MarkTaskCompleted(ctx, "u1", "t1", 1, time.Now())
	_, _ = s.MarkTaskCompleted(ctx, "u1", "t3", 1, time.Now())
	_, _ = s.MarkTaskCompleted(ctx, "u2", "t1", 1, time.Now())

	n, err := s.CountCompletedTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountCompletedTasksIn(ctx, "u1", []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.CountCompletedTasksIn(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.ListTaskProgressByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	some, err := s.ListTaskProgressIn(ctx, "u1", []string{"t2", "t9"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "t2", some[0].TaskID)
}

func TestEnsureQuestProgress_Idempotent(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := s.EnsureQuestProgress(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, a.Status)
	assert.Zero(t, a.GainedXP)

	require.NoError(t, s.AddQuestXP(ctx, "u1", "q1", 10))

	b, err := s.EnsureQuestProgress(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 10, b.GainedXP)
}

func TestAddQuestXP_Accumulates(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := s.EnsureQuestProgress(ctx, "u1", "q1")
	require.NoError(t, err)

	require.NoError(t, s.AddQuestXP(ctx, "u1", "q1", 10))
	require.NoError(t, s.AddQuestXP(ctx, "u1", "q1", 20))

	p, err := s.GetQuestProgress(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 30, p.GainedXP)

	assert.ErrorIs(t, s.AddQuestXP(ctx, "u1", "missing", 5), ErrNotFound)
}

func TestMarkQuestCompleted(t *testing.T) {
	s, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := s.EnsureQuestProgress(ctx, "u1", "q1")
	require.NoError(t, err)

	ok, err := s.MarkQuestCompleted(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkQuestCompleted(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountCompletedQuests(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.ListQuestProgressByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusCompleted, list[0].Status)
}

func TestWithTx_RollsBack(t *testing.T) {
	s, db := newTestLedger(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.WithTx(tx).CreateTaskProgress(ctx, inProgress("u1", "t1")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetTaskProgress(ctx, "u1", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
