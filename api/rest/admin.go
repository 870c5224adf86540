package rest

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/scheduler"
	"go.uber.org/zap"
)

// LeaderboardTask is the scheduler name of the leaderboard rebuild.
const LeaderboardTask = "leaderboard_refresh"

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	sched  *scheduler.Scheduler
	audit  *audit.Service
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. auditSvc and hooks may be nil.
func NewAdminHandler(sched *scheduler.Scheduler, auditSvc *audit.Service, hooks *hook.HookCenter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sched: sched, audit: auditSvc, hooks: hooks, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"goroutines":      runtime.NumGoroutine(),
		"scheduler_tasks": h.sched.List(),
	})
}

// ListSchedulerTasks returns every registered ticker with its run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.List()})
}

// RemoveSchedulerTask stops a ticker until the next restart.
// DELETE /api/admin/scheduler/:name
func (h *AdminHandler) RemoveSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	if err := h.sched.Remove(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownTask) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("admin removed scheduler task", zap.String("name", name))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListHooks returns the number of listeners per progress event.
// GET /api/admin/hooks
func (h *AdminHandler) ListHooks(c *gin.Context) {
	counts := make(map[string]int, len(hook.Events))
	for _, ev := range hook.Events {
		n := 0
		if h.hooks != nil {
			n = h.hooks.Count(ev)
		}
		counts[ev] = n
	}
	c.JSON(http.StatusOK, gin.H{"hooks": counts})
}

// DetachHook removes the named listener from one event, or from every event
// when no event is given.
// DELETE /api/admin/hooks/:name?event=
func (h *AdminHandler) DetachHook(c *gin.Context) {
	if h.hooks == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no hooks registered"})
		return
	}
	name, event := c.Param("name"), c.Query("event")
	var removed int
	if event != "" {
		removed = h.hooks.Unregister(event, name)
	} else {
		removed = h.hooks.UnregisterAll(name)
	}
	if removed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "hook not found"})
		return
	}
	h.logger.Warn("admin detached hook",
		zap.String("name", name), zap.String("event", event), zap.Int("removed", removed))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// RefreshRanking rebuilds the leaderboard immediately.
// POST /api/admin/ranking/refresh
func (h *AdminHandler) RefreshRanking(c *gin.Context) {
	if err := h.sched.RunNow(LeaderboardTask); err != nil {
		if errors.Is(err, scheduler.ErrUnknownTask) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("admin refreshed leaderboard")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Audit returns the newest audit rows.
// GET /api/admin/audit?user_id=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.audit.Recent(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows, "count": len(rows)})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
