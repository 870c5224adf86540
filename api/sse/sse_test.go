package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/config"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

var testSec = config.SecurityConfig{JWTSecret: "sse-secret", JWTTTLH: time.Hour}

func newStreamServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	c, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, c, testSec, zap.NewNop())
	r := gin.New()
	r.GET("/api/progress/stream", h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func login(t *testing.T, h *Handler, userID string) string {
	t.Helper()
	token, err := mw.GenerateToken(userID, testSec.JWTSecret, testSec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, h.c.Set(context.Background(), mw.SessionKey(token), userID, time.Hour))
	return token
}

// readEvent returns the next "event:" name and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServeSSE_MissingToken(t *testing.T) {
	srv, _ := newStreamServer(t)
	resp, err := http.Get(srv.URL + "/api/progress/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_LoggedOutToken(t *testing.T) {
	srv, _ := newStreamServer(t)
	token, err := mw.GenerateToken("alice", testSec.JWTSecret, time.Hour)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/progress/stream?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_StreamsOwnEventsOnly(t *testing.T) {
	srv, h := newStreamServer(t)
	token := login(t, h, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/progress/stream?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	name, data := readEvent(t, body)
	require.Equal(t, "connected", name)
	assert.Contains(t, data, "alice")

	publish := Publisher(h.pubsub)
	require.NoError(t, publish(ctx, hook.Event{Type: hook.BadgeAwarded, UserID: "bob", BadgeID: "badge-1"}))
	require.NoError(t, publish(ctx, hook.Event{Type: hook.QuestCompleted, UserID: "alice", QuestID: "q1"}))

	name, data = readEvent(t, body)
	assert.Equal(t, hook.QuestCompleted, name)
	assert.Contains(t, data, `"quest_id":"q1"`)
	assert.NotContains(t, data, "bob")
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "progress:u1", Channel("u1"))
}
