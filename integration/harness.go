package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/learnquest/api/rest"
	"github.com/kasuganosora/learnquest/api/sse"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/metrics"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/resource"
	"github.com/kasuganosora/learnquest/scheduler"
	"github.com/kasuganosora/learnquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key every test server accepts.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Catalog  *catalog.Store
	Users    *xp.Store
	Badges   *badge.Store
	Progress *progress.Coordinator
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server seeded with data/catalog.yaml.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	auditSvc := audit.New(db, logger)

	// ---- Stores ----
	cat, err := catalog.NewStore(db, 256, logger)
	require.NoError(t, err)
	users := xp.New(db, c, logger)
	badges := badge.New(db, logger)
	require.NoError(t, badges.EnsureDefaults(ctx))

	res := resource.NewLoader(filepath.Join("..", "data", "catalog.yaml"))
	require.NoError(t, res.Load())
	require.NoError(t, res.Apply(ctx, cat, badges, logger))

	// ---- Progress events ----
	hooks := hook.NewHookCenter()
	hooks.RegisterAll(hook.Events, 10, "sse", sse.Publisher(pubsub))
	hooks.RegisterAll(hook.Events, 20, "audit", auditSvc.Hook)

	coord := progress.NewCoordinator(db, cat, users, badges, c, hooks, progress.Config{}, logger)

	sched := scheduler.New(logger)
	sched.AddTicker(apirest.LeaderboardTask, time.Hour, users.RefreshLeaderboard)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.Recovery(logger), mw.TraceID(), mw.CORS(sec.AllowedOrigins))
	r.Use(metrics.Middleware("/metrics"))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Mount(r, apirest.Deps{
		Server:   config.ServerConfig{AdminKey: AdminKey},
		Security: sec,
		Cache:    c,
		PubSub:   pubsub,
		Catalog:  cat,
		Users:    users,
		Badges:   badges,
		Progress: coord,
		Audit:    auditSvc,
		Sched:    sched,
		Hooks:    hooks,
		Logger:   logger,
	})

	// ---- Start server ----
	server := httptest.NewServer(r)

	ts := &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Catalog:  cat,
		Users:    users,
		Badges:   badges,
		Progress: coord,
		Audit:    auditSvc,
		Sched:    sched,
		Server:   server,
		URL:      server.URL,
		Sec:      sec,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and its background workers.
func (ts *TestServer) Close() {
	ts.Server.CloseClientConnections()
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

// Do sends a request with a JSON body and optional Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

func jsonDecode(resp *http.Response, target interface{}) error {
	return json.NewDecoder(resp.Body).Decode(target)
}

// Expect asserts the status code and discards the body.
func Expect(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		require.Equal(t, status, resp.StatusCode, "body: %s", string(data))
	}
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, email, password string) (token, userID string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.UserID
}

// --- Progress helpers ---

// Finish starts and completes a task for the token's user.
func (ts *TestServer) Finish(t *testing.T, token, taskID string) {
	t.Helper()
	Expect(t, ts.PostJSON(t, "/api/progress/tasks/"+taskID+"/start", nil, token), http.StatusOK)
	Expect(t, ts.PostJSON(t, "/api/progress/tasks/"+taskID+"/complete", nil, token), http.StatusOK)
}

// --- SSE client ---

// StreamEvent is one server-sent event.
type StreamEvent struct {
	Name string
	Data string
}

// Stream is an open progress stream.
type Stream struct {
	resp   *http.Response
	cancel context.CancelFunc
	events chan StreamEvent
}

// OpenStream connects to the progress stream and waits for the connected
// event, after which the subscription is live.
func (ts *TestServer) OpenStream(t *testing.T, token string) *Stream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/progress/stream?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s := &Stream{resp: resp, cancel: cancel, events: make(chan StreamEvent, 64)}
	go s.readLoop()
	t.Cleanup(s.Close)

	ev := s.Next(t, 5*time.Second)
	require.Equal(t, "connected", ev.Name)
	return s
}

func (s *Stream) readLoop() {
	defer close(s.events)
	r := bufio.NewReader(s.resp.Body)
	var cur StreamEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.Name != "":
			s.events <- cur
			cur = StreamEvent{}
		}
	}
}

// Next returns the next event or fails after timeout.
func (s *Stream) Next(t *testing.T, timeout time.Duration) StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-s.events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for stream event")
		return StreamEvent{}
	}
}

// Collect gathers events until none arrives for quiet.
func (s *Stream) Collect(quiet time.Duration) []StreamEvent {
	var out []StreamEvent
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(quiet):
			return out
		}
	}
}

// Close disconnects the stream.
func (s *Stream) Close() {
	s.cancel()
	_ = s.resp.Body.Close()
}

var testCounter uint64

// UniqueID returns a unique string for test isolation.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}

// UniqueEmail returns a unique address for test isolation.
func UniqueEmail(prefix string) string {
	return strings.ToLower(UniqueID(prefix)) + "@example.com"
}
