package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/xp"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
)

// BadgeHandler serves badge definitions and the admin award endpoints.
type BadgeHandler struct {
	badges *badge.Store
	users  *xp.Store
	logger *zap.Logger
}

// NewBadgeHandler creates a BadgeHandler.
func NewBadgeHandler(badges *badge.Store, users *xp.Store, logger *zap.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, users: users, logger: logger}
}

// List handles GET /api/badges.
func (h *BadgeHandler) List(c *gin.Context) {
	list, err := h.badges.ListBadges(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": list})
}

// Get handles GET /api/badges/:id.
func (h *BadgeHandler) Get(c *gin.Context) {
	b, err := h.badges.GetBadge(c.Request.Context(), badge.ID(c.Param("id")))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Save handles POST /api/badges and PUT /api/badges/:id.
func (h *BadgeHandler) Save(c *gin.Context) {
	var req struct {
		ID          string `json:"id" binding:"max=64"`
		Name        string `json:"name" binding:"required,max=64"`
		Description string `json:"description" binding:"max=255"`
		IconURL     string `json:"icon_url" binding:"max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusCreated
	if id := c.Param("id"); id != "" {
		req.ID = id
		status = http.StatusOK
	}
	b := &model.Badge{ID: req.ID, Name: req.Name, Description: req.Description, IconURL: req.IconURL}
	if err := h.badges.SaveBadge(c.Request.Context(), b); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, b)
}

// Delete handles DELETE /api/badges/:id.
func (h *BadgeHandler) Delete(c *gin.Context) {
	if err := h.badges.DeleteBadge(c.Request.Context(), badge.ID(c.Param("id"))); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Award handles POST /api/badges/:id/award/:userId.
func (h *BadgeHandler) Award(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")
	if _, err := h.users.GetUser(ctx, userID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	ub, awarded, err := h.badges.Award(ctx, userID, badge.ID(c.Param("id")))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if awarded {
		h.logger.Info("badge granted by admin",
			zap.String("user_id", userID), zap.String("badge_id", ub.BadgeID))
	}
	c.JSON(http.StatusOK, gin.H{"user_badge": ub, "awarded": awarded})
}

// Revoke handles DELETE /api/badges/:id/award/:userId.
func (h *BadgeHandler) Revoke(c *gin.Context) {
	userID := c.Param("userId")
	if err := h.badges.Revoke(c.Request.Context(), userID, badge.ID(c.Param("id"))); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("badge revoked by admin",
		zap.String("user_id", userID), zap.String("badge_id", c.Param("id")))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
