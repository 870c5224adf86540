package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/game/xp"
	"go.uber.org/zap"
)

// RankingHandler handles leaderboard REST endpoints.
type RankingHandler struct {
	users  *xp.Store
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(users *xp.Store, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{users: users, logger: logger}
}

const rankingTop = 100

// TopXP returns the users with the most experience.
// GET /api/ranking/xp?limit=20
func (h *RankingHandler) TopXP(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}
	entries, err := h.users.TopXP(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []xp.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// UserXP returns one user's leaderboard total.
// GET /api/ranking/xp/:userId
func (h *RankingHandler) UserXP(c *gin.Context) {
	userID := c.Param("userId")
	total, err := h.users.Score(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "total_xp": total})
}
