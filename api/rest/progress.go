package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/game/progress"
	mw "github.com/kasuganosora/learnquest/middleware"
	"go.uber.org/zap"
)

// ProgressHandler exposes the progress coordinator. Start and complete act
// on the authenticated user; read routes take the user from the path.
type ProgressHandler struct {
	coord  *progress.Coordinator
	audit  *audit.Service
	logger *zap.Logger
}

// NewProgressHandler creates a ProgressHandler. auditSvc may be nil.
func NewProgressHandler(coord *progress.Coordinator, auditSvc *audit.Service, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{coord: coord, audit: auditSvc, logger: logger}
}

// record writes an audit row for a mutating call.
func (h *ProgressHandler) record(c *gin.Context, action, subject string, req, resp interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    mw.GetTraceID(c),
		UserID:     mw.GetUserID(c),
		Action:     action,
		Subject:    subject,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// StartTask handles POST /api/progress/tasks/:taskId/start.
func (h *ProgressHandler) StartTask(c *gin.Context) {
	start := time.Now()
	userID, taskID := mw.GetUserID(c), c.Param("taskId")
	p, err := h.coord.StartTask(c.Request.Context(), userID, taskID)
	h.record(c, "start_task", taskID, gin.H{"task_id": taskID}, p, err, start)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CompleteTask handles POST /api/progress/tasks/:taskId/complete.
func (h *ProgressHandler) CompleteTask(c *gin.Context) {
	start := time.Now()
	userID, taskID := mw.GetUserID(c), c.Param("taskId")
	p, err := h.coord.CompleteTask(c.Request.Context(), userID, taskID)
	h.record(c, "complete_task", taskID, gin.H{"task_id": taskID}, p, err, start)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListTasks handles GET /api/progress/users/:userId/tasks.
func (h *ProgressHandler) ListTasks(c *gin.Context) {
	out, err := h.coord.ListUserTaskProgress(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out, "count": len(out)})
}

// GetTask handles GET /api/progress/users/:userId/tasks/:taskId.
func (h *ProgressHandler) GetTask(c *gin.Context) {
	p, err := h.coord.GetTaskProgress(c.Request.Context(), c.Param("userId"), c.Param("taskId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListQuests handles GET /api/progress/users/:userId/quests.
func (h *ProgressHandler) ListQuests(c *gin.Context) {
	out, err := h.coord.ListUserQuestProgress(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": out, "count": len(out)})
}

// GetQuest handles GET /api/progress/users/:userId/quests/:questId.
func (h *ProgressHandler) GetQuest(c *gin.Context) {
	p, err := h.coord.GetQuestProgress(c.Request.Context(), c.Param("userId"), c.Param("questId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// QuestWithTasks handles GET /api/progress/users/:userId/quests/:questId/with-tasks.
func (h *ProgressHandler) QuestWithTasks(c *gin.Context) {
	d, err := h.coord.QuestWithTaskDetail(c.Request.Context(), c.Param("userId"), c.Param("questId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// CompletionStatus handles GET /api/progress/users/:userId/completion-status.
func (h *ProgressHandler) CompletionStatus(c *gin.Context) {
	st, err := h.coord.CompletionStatus(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// AwardMastery handles POST /api/progress/users/:userId/award-mastery.
// Users may only trigger it for themselves.
func (h *ProgressHandler) AwardMastery(c *gin.Context) {
	start := time.Now()
	userID := c.Param("userId")
	if userID != mw.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	st, err := h.coord.AwardMasteryBadges(c.Request.Context(), userID)
	h.record(c, "award_mastery", "", nil, st, err, start)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
