package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/bizdir/internal/model"
	"github.com/xxxsen/bizdir/internal/pkg/errcode"
	"github.com/xxxsen/bizdir/internal/pkg/response"
	"github.com/xxxsen/bizdir/internal/service"
)

type SearchHandler struct {
	search    *service.SearchService
	locations *service.LocationService
}

func NewSearchHandler(search *service.SearchService, locations *service.LocationService) *SearchHandler {
	return &SearchHandler{search: search, locations: locations}
}

type searchRequest struct {
	Query   string              `json:"query"`
	Filters service.Filters     `json:"filters"`
	Profile *model.UserProfile  `json:"profile,omitempty"`
	Client  model.ClientContext `json:"client,omitempty"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Client.IP == "" {
		req.Client.IP = c.ClientIP()
	}
	result, err := h.search.Search(c.Request.Context(), service.SearchRequest{
		Query:   req.Query,
		Filters: req.Filters,
		Profile: req.Profile,
		Client:  req.Client,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

type resolveLocationRequest struct {
	Query   string              `json:"query"`
	Profile *model.UserProfile  `json:"profile,omitempty"`
	Client  model.ClientContext `json:"client,omitempty"`
}

func (h *SearchHandler) ResolveLocation(c *gin.Context) {
	var req resolveLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Client.IP == "" {
		req.Client.IP = c.ClientIP()
	}
	result, err := h.locations.Resolve(c.Request.Context(), req.Query, req.Profile, req.Client)
	if err != nil {
		handleError(c, err)
		return
	}
	if result == nil && h.locations.HasNearMePhrase(req.Query) {
		response.Error(c, errcode.ErrLocationRequired, "location setup required")
		return
	}
	response.Success(c, gin.H{"location": result})
}
