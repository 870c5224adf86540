package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/xp"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
)

// UserHandler serves user profiles and their earned badges.
type UserHandler struct {
	users  *xp.Store
	badges *badge.Store
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *xp.Store, badges *badge.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, badges: badges, logger: logger}
}

// List handles GET /api/users?page=&size=.
func (h *UserHandler) List(c *gin.Context) {
	page, size := pageParams(c, 50)
	users, err := h.users.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "page": page, "size": size})
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	h.respondUser(c, c.Param("id"))
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	h.respondUser(c, mw.GetUserID(c))
}

func (h *UserHandler) respondUser(c *gin.Context, id string) {
	u, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateMe handles PUT /api/users/me. Only the display name can change.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	if err := h.users.SaveUser(ctx, &model.User{ID: userID, Name: req.Name}); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.respondUser(c, userID)
}

// Delete handles DELETE /api/users/:id (admin).
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("user deleted", zap.String("user_id", c.Param("id")))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Badges handles GET /api/users/:id/badges.
func (h *UserHandler) Badges(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")
	if _, err := h.users.GetUser(ctx, userID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	earned, err := h.badges.ListUserBadges(ctx, userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if earned == nil {
		earned = []badge.Earned{}
	}
	c.JSON(http.StatusOK, gin.H{"badges": earned, "count": len(earned)})
}
