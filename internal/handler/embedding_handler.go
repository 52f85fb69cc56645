package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/bizdir/internal/pkg/errcode"
	"github.com/xxxsen/bizdir/internal/pkg/response"
	"github.com/xxxsen/bizdir/internal/queue"
	"github.com/xxxsen/bizdir/internal/service"
)

type EmbeddingHandler struct {
	embeddings *service.EmbeddingService
	queue      *queue.Service
}

func NewEmbeddingHandler(embeddings *service.EmbeddingService, q *queue.Service) *EmbeddingHandler {
	return &EmbeddingHandler{embeddings: embeddings, queue: q}
}

type enqueueRequest struct {
	BusinessID string `json:"business_id"`
	Priority   int    `json:"priority"`
	Force      bool   `json:"force"`
}

func (h *EmbeddingHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BusinessID == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), req.BusinessID, queue.EnqueueOptions{
		Priority: req.Priority,
		Force:    req.Force,
	}); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queue": h.queue.Stats()})
}

func (h *EmbeddingHandler) Stats(c *gin.Context) {
	stats, err := h.embeddings.Stats(c.Request.Context(), c.Query("version"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"embeddings": stats,
		"queue":      h.queue.Stats(),
	})
}
