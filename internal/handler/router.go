package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/knowdhq/knowd/internal/middleware"
)

type RouterDeps struct {
	Knowledge   *KnowledgeHandler
	Budget      *BudgetHandler
	JWTSecret   []byte
	AIRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	aiGroup := authGroup.Group("")
	aiGroup.Use(middleware.RateLimit(deps.AIRateLimit))
	aiGroup.POST("/knowledge/search", deps.Knowledge.Search)
	aiGroup.POST("/knowledge/extract", deps.Knowledge.Extract)

	authGroup.GET("/knowledge/stats", deps.Knowledge.Stats)
	authGroup.POST("/knowledge", deps.Knowledge.Create)
	authGroup.GET("/knowledge/:id", deps.Knowledge.Get)
	authGroup.DELETE("/knowledge/:id", deps.Knowledge.Delete)

	authGroup.GET("/budget", deps.Budget.Get)
	authGroup.PUT("/budget", deps.Budget.Set)
}
