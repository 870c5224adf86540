package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/api/rest"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/model"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/scheduler"
	"github.com/kasuganosora/learnquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "admin-secret"

type testEnv struct {
	r       *gin.Engine
	cache   cache.Cache
	catalog *catalog.Store
	users   *xp.Store
	badges  *badge.Store
	audit   *audit.Service
	sched   *scheduler.Scheduler
	hooks   *hook.HookCenter
}

func strPtr(s string) *string { return &s }

// newEnv mounts every route over a fresh database holding topic "java" with
// quest q1 {t1:10, t2:20} and the stand-alone task solo (xp 5).
func newEnv(t *testing.T, adminKey string) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

	cat, err := catalog.NewStore(db, 64, logger)
	require.NoError(t, err)
	users := xp.New(db, c, logger)
	badges := badge.New(db, logger)
	require.NoError(t, badges.EnsureDefaults(ctx))

	require.NoError(t, cat.SaveTopic(ctx, &model.Topic{ID: "java", Name: "Java"}))
	require.NoError(t, cat.SaveQuest(ctx, &model.Quest{ID: "q1", TopicID: "java", Name: "Basics", OrderIndex: 1}))
	require.NoError(t, cat.SaveTask(ctx, &model.Task{ID: "t1", QuestID: strPtr("q1"), Title: "Variables", XPReward: 10, OrderIndex: 1}))
	require.NoError(t, cat.SaveTask(ctx, &model.Task{ID: "t2", QuestID: strPtr("q1"), Title: "Loops", XPReward: 20, OrderIndex: 2}))
	require.NoError(t, cat.SaveTask(ctx, &model.Task{ID: "solo", Title: "Warm-up", XPReward: 5}))

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	sched.AddTicker(rest.LeaderboardTask, time.Hour, users.RefreshLeaderboard)

	// A silent listener, so the admin hook routes have something to manage.
	hooks := hook.NewHookCenter()
	hooks.RegisterAll(hook.Events, 10, "noop", func(context.Context, hook.Event) error { return nil })

	coord := progress.NewCoordinator(db, cat, users, badges, c, hooks, progress.Config{}, logger)

	r := gin.New()
	rest.Mount(r, rest.Deps{
		Server:   config.ServerConfig{AdminKey: adminKey},
		Security: sec,
		Cache:    c,
		PubSub:   ps,
		Catalog:  cat,
		Users:    users,
		Badges:   badges,
		Progress: coord,
		Audit:    auditSvc,
		Sched:    sched,
		Hooks:    hooks,
		Logger:   logger,
	})
	return &testEnv{r: r, cache: c, catalog: cat, users: users, badges: badges, audit: auditSvc, sched: sched, hooks: hooks}
}

// do sends a JSON request. headers are key/value pairs.
func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// as sends a request with the given bearer token.
func (e *testEnv) as(token, method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, "Authorization", "Bearer "+token)
}

// admin sends a request carrying the admin key.
func (e *testEnv) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, "X-Admin-Key", testAdminKey)
}

// login registers or signs in email and returns the token and user id.
func (e *testEnv) login(t *testing.T, email string) (string, string) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.UserID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
