package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/model"
	"github.com/xxxsen/bizdir/internal/pkg/errcode"
	"github.com/xxxsen/bizdir/internal/pkg/response"
	"github.com/xxxsen/bizdir/internal/queue"
	"github.com/xxxsen/bizdir/internal/repo"
)

type BusinessHandler struct {
	businesses *repo.BusinessRepo
	queue      *queue.Service
}

func NewBusinessHandler(businesses *repo.BusinessRepo, q *queue.Service) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, queue: q}
}

type businessRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
	City        string   `json:"city"`
	Address     string   `json:"address"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating"`
}

func (h *BusinessHandler) Create(c *gin.Context) {
	var req businessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	now := time.Now().Unix()
	b := &model.Business{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Tags:        req.Tags,
		City:        req.City,
		Address:     req.Address,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Rating:      req.Rating,
		Ctime:       now,
		Mtime:       now,
	}
	if err := h.businesses.Create(c.Request.Context(), b); err != nil {
		handleError(c, err)
		return
	}
	// Embedding generation never blocks the primary write.
	h.enqueue(c.Request.Context(), b.ID, model.PriorityCreate, false)
	response.Success(c, b)
}

func (h *BusinessHandler) Update(c *gin.Context) {
	var req businessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	b := &model.Business{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Tags:        req.Tags,
		City:        req.City,
		Address:     req.Address,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Rating:      req.Rating,
		Mtime:       time.Now().Unix(),
	}
	if err := h.businesses.Update(c.Request.Context(), b); err != nil {
		handleError(c, err)
		return
	}
	// Content changed: regenerate ahead of the fresh-create backlog.
	h.enqueue(c.Request.Context(), b.ID, model.PriorityRegenerate, true)
	response.Success(c, b)
}

func (h *BusinessHandler) Get(c *gin.Context) {
	b, err := h.businesses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, b)
}

func (h *BusinessHandler) enqueue(ctx context.Context, businessID string, priority int, force bool) {
	if err := h.queue.Enqueue(ctx, businessID, queue.EnqueueOptions{Priority: priority, Force: force}); err != nil {
		logutil.GetLogger(ctx).Warn("enqueue embedding generation failed",
			zap.String("business_id", businessID), zap.Error(err))
	}
}
