package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- AdminAuth ----

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	// An empty key keeps every admin endpoint closed.
	e := newEnv(t, "")
	w := e.do(http.MethodGet, "/api/admin/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	e := newEnv(t, testAdminKey)
	w := e.do(http.MethodGet, "/api/admin/metrics", nil, "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ---- endpoints ----

func TestAdminMetrics(t *testing.T) {
	e := newEnv(t, testAdminKey)
	w := e.admin(http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines")
	assert.Contains(t, w.Body.String(), "leaderboard_refresh")
}

func TestAdminScheduler(t *testing.T) {
	e := newEnv(t, testAdminKey)
	w := e.admin(http.MethodGet, "/api/admin/scheduler", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tasks []struct {
			Name string `json:"name"`
		} `json:"tasks"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "leaderboard_refresh", resp.Tasks[0].Name)
}

func TestAdminRankingRefresh(t *testing.T) {
	e := newEnv(t, testAdminKey)
	_, userID := e.login(t, "alice@example.com")

	ctx := context.Background()
	// Simulate a lost leaderboard.
	require.NoError(t, e.cache.ZRem(ctx, xp.LeaderboardKey, userID))

	w := e.admin(http.MethodPost, "/api/admin/ranking/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := e.cache.ZScore(ctx, xp.LeaderboardKey, userID)
	assert.NoError(t, err)

	info := e.sched.List()
	require.Len(t, info, 1)
	assert.Equal(t, int64(1), info[0].Runs)
}

func TestAdminRankingRefresh_Unregistered(t *testing.T) {
	e := newEnv(t, testAdminKey)
	require.NoError(t, e.sched.Remove("leaderboard_refresh"))
	w := e.admin(http.MethodPost, "/api/admin/ranking/refresh", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminAudit(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")
	e.as(token, http.MethodPost, "/api/progress/tasks/t1/start", nil)

	require.Eventually(t, func() bool {
		w := e.admin(http.MethodGet, "/api/admin/audit?user_id="+userID, nil)
		var resp struct {
			Count int `json:"count"`
		}
		return json.Unmarshal(w.Body.Bytes(), &resp) == nil && resp.Count == 1
	}, 5*time.Second, 50*time.Millisecond)

	w := e.admin(http.MethodGet, "/api/admin/audit?user_id=someone-else", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestAdminDeleteUser(t *testing.T) {
	e := newEnv(t, testAdminKey)
	_, userID := e.login(t, "alice@example.com")

	require.Equal(t, http.StatusOK, e.admin(http.MethodDelete, "/api/admin/users/"+userID, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodDelete, "/api/admin/users/"+userID, nil).Code)
}

func TestAdminRemoveSchedulerTask(t *testing.T) {
	e := newEnv(t, testAdminKey)
	require.Equal(t, http.StatusOK, e.admin(http.MethodDelete, "/api/admin/scheduler/leaderboard_refresh", nil).Code)
	assert.Empty(t, e.sched.List())
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodDelete, "/api/admin/scheduler/leaderboard_refresh", nil).Code)
}

func TestAdminHooks(t *testing.T) {
	e := newEnv(t, testAdminKey)

	var resp struct {
		Hooks map[string]int `json:"hooks"`
	}
	decode(t, e.admin(http.MethodGet, "/api/admin/hooks", nil), &resp)
	assert.Equal(t, 1, resp.Hooks[hook.TaskStarted])
	assert.Equal(t, 1, resp.Hooks[hook.BadgeAwarded])

	w := e.admin(http.MethodDelete, "/api/admin/hooks/noop?event="+hook.TaskStarted, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":1`)
	assert.Zero(t, e.hooks.Count(hook.TaskStarted))

	w = e.admin(http.MethodDelete, "/api/admin/hooks/noop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"removed":%d`, len(hook.Events)-1))

	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodDelete, "/api/admin/hooks/noop", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodDelete, "/api/admin/hooks/noop", nil).Code)
}
