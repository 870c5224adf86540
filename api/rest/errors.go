package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/ledger"
	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/game/xp"
	mw "github.com/kasuganosora/learnquest/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, xp.ErrNotFound),
		errors.Is(err, badge.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrNotStarted),
		errors.Is(err, progress.ErrInvalidState),
		errors.Is(err, xp.ErrDuplicate),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalid),
		errors.Is(err, xp.ErrInvalid),
		errors.Is(err, badge.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Server-side failures are
// logged and reported with a generic message.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "1")
		}
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", mw.GetUserID(c)),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pageParams reads ?page= and ?size= with the given default size.
func pageParams(c *gin.Context, defSize int) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	size, err := strconv.Atoi(c.Query("size"))
	if err != nil || size <= 0 || size > 200 {
		size = defSize
	}
	return page, size
}
