package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/bizdir/internal/middleware"
)

type RouterDeps struct {
	Businesses *BusinessHandler
	Search     *SearchHandler
	Embeddings *EmbeddingHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/businesses", deps.Businesses.Create)
	api.PUT("/businesses/:id", deps.Businesses.Update)
	api.GET("/businesses/:id", deps.Businesses.Get)

	api.POST("/search", middleware.RateLimit(time.Second), deps.Search.Search)
	api.POST("/location/resolve", deps.Search.ResolveLocation)

	api.POST("/embeddings/enqueue", deps.Embeddings.Enqueue)
	api.GET("/embeddings/stats", deps.Embeddings.Stats)
}
