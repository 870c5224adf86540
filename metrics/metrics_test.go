package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware("/metrics"))
	r.GET("/api/quests/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/quests/:id", "200"))
	for _, id := range []string{"q1", "q2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/quests/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/quests/:id", "200"))
	assert.Equal(t, 2.0, after-before)
}

func TestRecordProgressOp(t *testing.T) {
	before := testutil.ToFloat64(progressOps.WithLabelValues("complete_task", "ok"))
	RecordProgressOp("complete_task", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(progressOps.WithLabelValues("complete_task", "ok"))-before)
}

func TestRecordXPIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(xpAwarded)
	RecordXP(0)
	RecordXP(-5)
	RecordXP(30)
	assert.Equal(t, 30.0, testutil.ToFloat64(xpAwarded)-before)
}

func TestRecordSchedulerRun(t *testing.T) {
	before := testutil.ToFloat64(schedulerRuns.WithLabelValues("unknown", "false"))
	RecordSchedulerRun("", 0, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(schedulerRuns.WithLabelValues("unknown", "false"))-before)
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordBadge("badge-1")
	ObserveLockWait(3 * time.Millisecond)
	RecordCatalogLookup(true)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "learnquest_badges_awarded_total")
	assert.Contains(t, body, "learnquest_progress_lock_wait_seconds")
	assert.Contains(t, body, "learnquest_catalog_cache_lookups_total")
}
