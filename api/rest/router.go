package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/learnquest/api/sse"
	"github.com/kasuganosora/learnquest/audit"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/config"
	"github.com/kasuganosora/learnquest/game/badge"
	"github.com/kasuganosora/learnquest/game/catalog"
	"github.com/kasuganosora/learnquest/game/progress"
	"github.com/kasuganosora/learnquest/game/xp"
	mw "github.com/kasuganosora/learnquest/middleware"
	"github.com/kasuganosora/learnquest/plugin/hook"
	"github.com/kasuganosora/learnquest/scheduler"
	"go.uber.org/zap"
)

// Deps carries everything the API routes are built from. Audit and Hooks
// may be nil.
type Deps struct {
	Server   config.ServerConfig
	Security config.SecurityConfig
	Cache    cache.Cache
	PubSub   cache.PubSub
	Catalog  *catalog.Store
	Users    *xp.Store
	Badges   *badge.Store
	Progress *progress.Coordinator
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Hooks    *hook.HookCenter
	Logger   *zap.Logger
}

// Mount registers every /api route on r.
func Mount(r *gin.Engine, d Deps) {
	authH := NewAuthHandler(d.Users, d.Cache, d.Security, d.Logger)
	progH := NewProgressHandler(d.Progress, d.Audit, d.Logger)
	catH := NewCatalogHandler(d.Catalog, d.Logger)
	userH := NewUserHandler(d.Users, d.Badges, d.Logger)
	badgeH := NewBadgeHandler(d.Badges, d.Users, d.Logger)
	rankH := NewRankingHandler(d.Users, d.Logger)
	adminH := NewAdminHandler(d.Sched, d.Audit, d.Hooks, d.Logger)
	sseH := sse.NewHandler(d.PubSub, d.Cache, d.Security, d.Logger)

	requireAuth := mw.Auth(d.Security, d.Cache)
	ipAllow, adminKey := mw.IPWhitelist(d.Server.AdminIPs), AdminAuth(d.Server.AdminKey)
	admin := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{ipAllow, adminKey, h}
	}

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", requireAuth, authH.Logout)
		authG.POST("/refresh", requireAuth, authH.Refresh)

		// EventSource cannot send headers, so the stream checks its own token.
		api.GET("/progress/stream", sseH.ServeSSE)

		progG := api.Group("/progress", requireAuth)
		progG.POST("/tasks/:taskId/start", progH.StartTask)
		progG.POST("/tasks/:taskId/complete", progH.CompleteTask)
		progG.GET("/users/:userId/tasks", progH.ListTasks)
		progG.GET("/users/:userId/tasks/:taskId", progH.GetTask)
		progG.GET("/users/:userId/quests", progH.ListQuests)
		progG.GET("/users/:userId/quests/:questId", progH.GetQuest)
		progG.GET("/users/:userId/quests/:questId/with-tasks", progH.QuestWithTasks)
		progG.GET("/users/:userId/completion-status", progH.CompletionStatus)
		progG.POST("/users/:userId/award-mastery", progH.AwardMastery)

		topicsG := api.Group("/topics")
		topicsG.GET("", catH.ListTopics)
		topicsG.GET("/:id", catH.GetTopic)
		topicsG.GET("/:id/tree", catH.TopicTree)
		topicsG.GET("/:id/quests", catH.ListTopicQuests)
		topicsG.POST("", admin(catH.CreateTopic)...)
		topicsG.PUT("/:id", admin(catH.UpdateTopic)...)
		topicsG.DELETE("/:id", admin(catH.DeleteTopic)...)
		topicsG.POST("/:id/quests", admin(catH.CreateQuest)...)

		questsG := api.Group("/quests")
		questsG.GET("/:id", catH.GetQuest)
		questsG.GET("/:id/tasks", catH.ListQuestTasks)
		questsG.PUT("/:id", admin(catH.UpdateQuest)...)
		questsG.DELETE("/:id", admin(catH.DeleteQuest)...)
		questsG.POST("/:id/tasks", admin(catH.CreateQuestTask)...)

		tasksG := api.Group("/tasks")
		tasksG.GET("", catH.ListTasks)
		tasksG.GET("/:id", catH.GetTask)
		tasksG.POST("", admin(catH.CreateTask)...)
		tasksG.PUT("/:id", admin(catH.UpdateTask)...)
		tasksG.DELETE("/:id", admin(catH.DeleteTask)...)

		usersG := api.Group("/users", requireAuth)
		usersG.GET("", userH.List)
		usersG.GET("/me", userH.Me)
		usersG.PUT("/me", userH.UpdateMe)
		usersG.GET("/:id", userH.Get)
		usersG.GET("/:id/badges", userH.Badges)

		badgesG := api.Group("/badges")
		badgesG.GET("", badgeH.List)
		badgesG.GET("/:id", badgeH.Get)
		badgesG.POST("", admin(badgeH.Save)...)
		badgesG.PUT("/:id", admin(badgeH.Save)...)
		badgesG.DELETE("/:id", admin(badgeH.Delete)...)
		badgesG.POST("/:id/award/:userId", admin(badgeH.Award)...)
		badgesG.DELETE("/:id/award/:userId", admin(badgeH.Revoke)...)

		rankG := api.Group("/ranking")
		rankG.GET("/xp", rankH.TopXP)
		rankG.GET("/xp/:userId", rankH.UserXP)

		adminG := api.Group("/admin", ipAllow, adminKey)
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.DELETE("/scheduler/:name", adminH.RemoveSchedulerTask)
		adminG.GET("/hooks", adminH.ListHooks)
		adminG.DELETE("/hooks/:name", adminH.DetachHook)
		adminG.POST("/ranking/refresh", adminH.RefreshRanking)
		adminG.GET("/audit", adminH.Audit)
		adminG.DELETE("/users/:id", userH.Delete)
	}
}
