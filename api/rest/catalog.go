package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
)

// CatalogHandler serves topic, quest and task definitions. Write routes are
// mounted behind AdminAuth.
type CatalogHandler struct {
	store  *catalog.Store
	logger *zap.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(store *catalog.Store, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, logger: logger}
}

type topicRequest struct {
	ID          string `json:"id" binding:"max=64"`
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description"`
}

type questRequest struct {
	ID          string `json:"id" binding:"max=64"`
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index"`
}

type taskRequest struct {
	ID          string  `json:"id" binding:"max=64"`
	QuestID     *string `json:"quest_id"`
	Title       string  `json:"title" binding:"required,max=128"`
	Description string  `json:"description"`
	XPReward    int     `json:"xp_reward" binding:"min=0"`
	OrderIndex  int     `json:"order_index"`
}

// ---- topics ----

// ListTopics handles GET /api/topics?page=&size=.
func (h *CatalogHandler) ListTopics(c *gin.Context) {
	page, size := pageParams(c, 50)
	topics, err := h.store.ListTopics(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics, "page": page, "size": size})
}

// GetTopic handles GET /api/topics/:id.
func (h *CatalogHandler) GetTopic(c *gin.Context) {
	t, err := h.store.GetTopic(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// TopicTree handles GET /api/topics/:id/tree.
func (h *CatalogHandler) TopicTree(c *gin.Context) {
	tree, err := h.store.TopicTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// CreateTopic handles POST /api/topics.
func (h *CatalogHandler) CreateTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := &model.Topic{ID: req.ID, Name: req.Name, Description: req.Description}
	if err := h.store.SaveTopic(c.Request.Context(), t); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTopic handles PUT /api/topics/:id.
func (h *CatalogHandler) UpdateTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	t, err := h.store.GetTopic(ctx, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	t.Name, t.Description = req.Name, req.Description
	if err := h.store.SaveTopic(ctx, t); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTopic handles DELETE /api/topics/:id.
func (h *CatalogHandler) DeleteTopic(c *gin.Context) {
	if err := h.store.DeleteTopic(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---- quests ----

// ListTopicQuests handles GET /api/topics/:id/quests.
func (h *CatalogHandler) ListTopicQuests(c *gin.Context) {
	ctx := c.Request.Context()
	topicID := c.Param("id")
	if _, err := h.store.GetTopic(ctx, topicID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	quests, err := h.store.ListQuestsByTopic(ctx, topicID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": quests})
}

// CreateQuest handles POST /api/topics/:id/quests.
func (h *CatalogHandler) CreateQuest(c *gin.Context) {
	var req questRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := &model.Quest{
		ID:          req.ID,
		TopicID:     c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		OrderIndex:  req.OrderIndex,
	}
	if err := h.store.SaveQuest(c.Request.Context(), q); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// GetQuest handles GET /api/quests/:id.
func (h *CatalogHandler) GetQuest(c *gin.Context) {
	q, err := h.store.GetQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// UpdateQuest handles PUT /api/quests/:id. The quest keeps its topic.
func (h *CatalogHandler) UpdateQuest(c *gin.Context) {
	var req questRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	q, err := h.store.GetQuest(ctx, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	q.Name, q.Description, q.OrderIndex = req.Name, req.Description, req.OrderIndex
	if err := h.store.SaveQuest(ctx, q); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// DeleteQuest handles DELETE /api/quests/:id.
func (h *CatalogHandler) DeleteQuest(c *gin.Context) {
	if err := h.store.DeleteQuest(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---- tasks ----

// ListQuestTasks handles GET /api/quests/:id/tasks.
func (h *CatalogHandler) ListQuestTasks(c *gin.Context) {
	ctx := c.Request.Context()
	questID := c.Param("id")
	if _, err := h.store.GetQuest(ctx, questID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	tasks, err := h.store.ListTasksByQuest(ctx, questID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateQuestTask handles POST /api/quests/:id/tasks.
func (h *CatalogHandler) CreateQuestTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	questID := c.Param("id")
	req.QuestID = &questID
	h.saveTask(c, req, http.StatusCreated)
}

// ListTasks handles GET /api/tasks.
func (h *CatalogHandler) ListTasks(c *gin.Context) {
	tasks, err := h.store.ListTasks(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// CreateTask handles POST /api/tasks. Without quest_id the task stands alone.
func (h *CatalogHandler) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.saveTask(c, req, http.StatusCreated)
}

// GetTask handles GET /api/tasks/:id.
func (h *CatalogHandler) GetTask(c *gin.Context) {
	t, err := h.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateTask handles PUT /api/tasks/:id.
func (h *CatalogHandler) UpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.store.GetTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	req.ID = c.Param("id")
	h.saveTask(c, req, http.StatusOK)
}

// DeleteTask handles DELETE /api/tasks/:id.
func (h *CatalogHandler) DeleteTask(c *gin.Context) {
	if err := h.store.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *CatalogHandler) saveTask(c *gin.Context, req taskRequest, status int) {
	t := &model.Task{
		ID:          req.ID,
		QuestID:     req.QuestID,
		Title:       req.Title,
		Description: req.Description,
		XPReward:    req.XPReward,
		OrderIndex:  req.OrderIndex,
	}
	if err := h.store.SaveTask(c.Request.Context(), t); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, t)
}
