package rest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_StartAndComplete(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")

	w := e.as(token, http.MethodPost, "/api/progress/tasks/t1/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tp model.UserTaskProgress
	decode(t, w, &tp)
	assert.Equal(t, model.StatusInProgress, tp.Status)
	assert.Equal(t, userID, tp.UserID)

	w = e.as(token, http.MethodPost, "/api/progress/tasks/t1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &tp)
	assert.Equal(t, model.StatusCompleted, tp.Status)
	assert.Equal(t, 10, tp.GainedXP)

	w = e.as(token, http.MethodGet, "/api/progress/users/"+userID+"/quests/q1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var qp model.UserQuestProgress
	decode(t, w, &qp)
	assert.Equal(t, model.StatusInProgress, qp.Status)
	assert.Equal(t, 10, qp.GainedXP)

	u, err := e.users.GetUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.TotalXP)
}

func TestProgress_CompleteWithoutStart(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, _ := e.login(t, "alice@example.com")

	w := e.as(token, http.MethodPost, "/api/progress/tasks/t1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProgress_UnknownTask(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")

	assert.Equal(t, http.StatusNotFound, e.as(token, http.MethodPost, "/api/progress/tasks/nope/start", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.as(token, http.MethodGet, "/api/progress/users/"+userID+"/tasks/t1", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.as(token, http.MethodGet, "/api/progress/users/"+userID+"/quests/nope/with-tasks", nil).Code,
		"unknown quest")
}

func TestProgress_CompleteTwiceCreditsOnce(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")

	require.Equal(t, http.StatusOK, e.as(token, http.MethodPost, "/api/progress/tasks/t2/start", nil).Code)
	require.Equal(t, http.StatusOK, e.as(token, http.MethodPost, "/api/progress/tasks/t2/complete", nil).Code)
	require.Equal(t, http.StatusOK, e.as(token, http.MethodPost, "/api/progress/tasks/t2/complete", nil).Code)

	u, err := e.users.GetUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.TotalXP)
}

func TestProgress_ListsAndDetail(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")
	base := "/api/progress/users/" + userID

	var list struct {
		Tasks []model.UserTaskProgress `json:"tasks"`
		Count int                      `json:"count"`
	}
	w := e.as(token, http.MethodGet, base+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.NotNil(t, list.Tasks)
	assert.Zero(t, list.Count)

	assert.Equal(t, http.StatusConflict, e.as(token, http.MethodGet, base+"/quests/q1/with-tasks", nil).Code,
		"detail before the quest is started")

	e.as(token, http.MethodPost, "/api/progress/tasks/t2/start", nil)
	e.as(token, http.MethodPost, "/api/progress/tasks/t2/complete", nil)

	w = e.as(token, http.MethodGet, base+"/tasks", nil)
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	var quests struct {
		Quests []model.UserQuestProgress `json:"quests"`
	}
	decode(t, e.as(token, http.MethodGet, base+"/quests", nil), &quests)
	require.Len(t, quests.Quests, 1)
	assert.Equal(t, "q1", quests.Quests[0].QuestID)

	w = e.as(token, http.MethodGet, base+"/quests/q1/with-tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail progress.QuestDetail
	decode(t, w, &detail)
	assert.Equal(t, "q1", detail.QuestID)
	assert.Equal(t, 20, detail.QuestProgress.GainedXP)
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, "t1", detail.Tasks[0].TaskID)
	assert.Equal(t, model.StatusNotStarted, detail.Tasks[0].Status)
	assert.Equal(t, "Loops", detail.Tasks[1].Title)
	assert.Equal(t, model.StatusCompleted, detail.Tasks[1].Status)
	assert.Contains(t, w.Body.String(), `"task_title":"Variables"`)
}

func TestProgress_CompletionAndMastery(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")
	base := "/api/progress/users/" + userID

	for _, id := range []string{"t1", "t2", "solo"} {
		require.Equal(t, http.StatusOK, e.as(token, http.MethodPost, "/api/progress/tasks/"+id+"/start", nil).Code)
		require.Equal(t, http.StatusOK, e.as(token, http.MethodPost, "/api/progress/tasks/"+id+"/complete", nil).Code)
	}

	w := e.as(token, http.MethodGet, base+"/completion-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st progress.CompletionStatus
	decode(t, w, &st)
	assert.Equal(t, int64(35), st.TotalXP)
	assert.Equal(t, int64(3), st.TasksCompleted)
	assert.Equal(t, int64(3), st.TasksTotal)
	assert.Equal(t, int64(1), st.QuestsCompleted)
	assert.True(t, st.IsFullyCompleted)
	before := st.BadgesEarned

	w = e.as(token, http.MethodPost, base+"/award-mastery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &st)
	assert.Equal(t, before+2, st.BadgesEarned)

	var badges struct {
		Count int `json:"count"`
	}
	decode(t, e.as(token, http.MethodGet, "/api/users/"+userID+"/badges", nil), &badges)
	assert.Equal(t, int(st.BadgesEarned), badges.Count)
}

func TestProgress_MasteryOnlyForSelf(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, _ := e.login(t, "alice@example.com")
	_, bob := e.login(t, "bob@example.com")

	w := e.as(token, http.MethodPost, "/api/progress/users/"+bob+"/award-mastery", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProgress_StatusUnknownUser(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, _ := e.login(t, "alice@example.com")

	w := e.as(token, http.MethodGet, "/api/progress/users/ghost/completion-status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProgress_MutationsAreAudited(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")

	e.as(token, http.MethodPost, "/api/progress/tasks/t1/start", nil)
	e.as(token, http.MethodPost, "/api/progress/tasks/t1/complete", nil)
	e.as(token, http.MethodPost, "/api/progress/tasks/t2/complete", nil) // not started

	require.Eventually(t, func() bool {
		rows, err := e.audit.Recent(context.Background(), userID, 10)
		return err == nil && len(rows) == 3
	}, 5*time.Second, 50*time.Millisecond)

	rows, err := e.audit.Recent(context.Background(), userID, 10)
	require.NoError(t, err)
	// Newest first.
	assert.Equal(t, "complete_task", rows[0].Action)
	assert.NotEmpty(t, rows[0].Error)
	assert.Equal(t, "start_task", rows[2].Action)
	assert.Empty(t, rows[2].Error)
}
