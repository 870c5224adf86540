package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	"github.com/kasuganosora/learnquest/game/xp"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	users  *xp.Store
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *xp.Store, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cache: c, sec: sec, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=4,max=64"`
	Name     string `json:"name" binding:"max=64"`
}

// Login handles POST /api/auth/login.
// Auto-registers on first login if the email is unknown.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	u, err := h.users.GetUserByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, xp.ErrNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		name := req.Name
		if name == "" {
			name = strings.SplitN(req.Email, "@", 2)[0]
		}
		u = &model.User{Name: name, Email: req.Email, PasswordHash: string(hash)}
		if err := h.users.CreateUser(ctx, u); err != nil {
			// A concurrent login registered the same email first.
			writeError(c, h.logger, err)
			return
		}
		h.logger.Info("user registered", zap.String("user_id", u.ID))
	case err != nil:
		writeError(c, h.logger, err)
		return
	default:
		if u.PasswordHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	token, err := h.issue(ctx, u.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": u.ID,
		"name":    u.Name,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID := mw.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	delCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_ = h.cache.Del(delCtx, mw.SessionKey(mw.BearerToken(c)))
	cancel()

	token, err := h.issue(ctx, userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// issue signs a token and registers its session.
func (h *AuthHandler) issue(ctx context.Context, userID string) (string, error) {
	token, err := mw.GenerateToken(userID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), userID, h.sec.JWTTTLH); err != nil {
		return "", err
	}
	return token, nil
}
