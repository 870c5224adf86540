package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_ListAndGet(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, aliceID := e.login(t, "alice@example.com")
	e.login(t, "bob@example.com")

	w := e.as(token, http.MethodGet, "/api/users?size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Users []map[string]interface{} `json:"users"`
	}
	decode(t, w, &page)
	assert.Len(t, page.Users, 1)

	w = e.as(token, http.MethodGet, "/api/users/"+aliceID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_xp":0`)

	assert.Equal(t, http.StatusNotFound, e.as(token, http.MethodGet, "/api/users/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.as(token, http.MethodGet, "/api/users/ghost/badges", nil).Code)
}

func TestUsers_UpdateMe(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, _ := e.login(t, "alice@example.com")

	w := e.as(token, http.MethodPut, "/api/users/me", map[string]string{"name": "Ally"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ally"`)

	assert.Equal(t, http.StatusBadRequest, e.as(token, http.MethodPut, "/api/users/me", map[string]string{}).Code)
}

func TestBadges_PublicAndAdmin(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")

	var list struct {
		Badges []map[string]interface{} `json:"badges"`
	}
	decode(t, e.do(http.MethodGet, "/api/badges", nil), &list)
	assert.Len(t, list.Badges, len(badge.Defaults()))

	w := e.do(http.MethodGet, "/api/badges/"+string(badge.QuestCompletionist), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Quest God")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/badges/nope", nil).Code)

	w = e.admin(http.MethodPost, "/api/badges", map[string]string{"id": "helper", "name": "Helper"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized,
		e.do(http.MethodPost, "/api/badges", map[string]string{"name": "Sneaky"}).Code)

	w = e.admin(http.MethodPost, "/api/badges/helper/award/"+userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"awarded":true`)
	w = e.admin(http.MethodPost, "/api/badges/helper/award/"+userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"awarded":false`)

	var earned struct {
		Count int `json:"count"`
	}
	decode(t, e.as(token, http.MethodGet, "/api/users/"+userID+"/badges", nil), &earned)
	assert.Equal(t, 1, earned.Count)

	require.Equal(t, http.StatusOK, e.admin(http.MethodDelete, "/api/badges/helper/award/"+userID, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodDelete, "/api/badges/helper/award/"+userID, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodPost, "/api/badges/helper/award/ghost", nil).Code)

	require.Equal(t, http.StatusOK, e.admin(http.MethodDelete, "/api/badges/helper", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/badges/helper", nil).Code)
}

func TestRanking_TopXP(t *testing.T) {
	e := newEnv(t, testAdminKey)
	aliceToken, aliceID := e.login(t, "alice@example.com")
	bobToken, bobID := e.login(t, "bob@example.com")

	for _, id := range []string{"t1", "t2"} {
		e.as(aliceToken, http.MethodPost, "/api/progress/tasks/"+id+"/start", nil)
		e.as(aliceToken, http.MethodPost, "/api/progress/tasks/"+id+"/complete", nil)
	}
	e.as(bobToken, http.MethodPost, "/api/progress/tasks/solo/start", nil)
	e.as(bobToken, http.MethodPost, "/api/progress/tasks/solo/complete", nil)

	w := e.do(http.MethodGet, "/api/ranking/xp?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Ranking []xp.Entry `json:"ranking"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Ranking, 2)
	assert.Equal(t, aliceID, resp.Ranking[0].UserID)
	assert.Equal(t, int64(30), resp.Ranking[0].TotalXP)
	assert.Equal(t, 1, resp.Ranking[0].Rank)
	assert.Equal(t, bobID, resp.Ranking[1].UserID)
	assert.Equal(t, int64(5), resp.Ranking[1].TotalXP)
}

func TestRanking_FallsBackToDatabase(t *testing.T) {
	e := newEnv(t, testAdminKey)
	_, aliceID := e.login(t, "alice@example.com")
	require.NoError(t, e.cache.ZRem(context.Background(), xp.LeaderboardKey, aliceID))

	var resp struct {
		Ranking []xp.Entry `json:"ranking"`
	}
	decode(t, e.do(http.MethodGet, "/api/ranking/xp", nil), &resp)
	require.Len(t, resp.Ranking, 1)
	assert.Equal(t, aliceID, resp.Ranking[0].UserID)
}

func TestRanking_UserXP(t *testing.T) {
	e := newEnv(t, testAdminKey)
	token, userID := e.login(t, "alice@example.com")
	e.as(token, http.MethodPost, "/api/progress/tasks/solo/start", nil)
	e.as(token, http.MethodPost, "/api/progress/tasks/solo/complete", nil)

	w := e.do(http.MethodGet, "/api/ranking/xp/"+userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_xp":5`)

	// Served from the database once the leaderboard entry is gone.
	require.NoError(t, e.cache.ZRem(context.Background(), xp.LeaderboardKey, userID))
	w = e.do(http.MethodGet, "/api/ranking/xp/"+userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_xp":5`)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/ranking/xp/ghost", nil).Code)
}
