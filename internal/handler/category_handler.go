package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aoabd/course-api/internal/middleware"
	"github.com/aoabd/course-api/internal/service"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
)

// CategoryHandler exposes course category endpoints.
type CategoryHandler struct {
	categories *service.CategoryService
}

// NewCategoryHandler constructs CategoryHandler.
func NewCategoryHandler(categories *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// List godoc
// @Summary List categories in display order
// @Tags Categories
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	categories, fromCache, err := h.categories.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, fromCache)
	response.JSON(c, http.StatusOK, categories, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a category
// @Tags Categories
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Router /categories/{id} [get]
func (h *CategoryHandler) Get(c *gin.Context) {
	category, err := h.categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Create godoc
// @Summary Create a category
// @Tags Categories
// @Accept json
// @Produce json
// @Param payload body service.CategoryInput true "Category payload"
// @Success 201 {object} response.Envelope
// @Router /categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var input service.CategoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	category, err := h.categories.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// Reorder godoc
// @Summary Reorder categories
// @Tags Categories
// @Accept json
// @Produce json
// @Param payload body reorderBody true "Ordered category IDs"
// @Success 200 {object} response.Envelope
// @Router /categories/reorder [put]
func (h *CategoryHandler) Reorder(c *gin.Context) {
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.categories.Reorder(c.Request.Context(), body.OrderedIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reordered": true}, nil)
}

type reorderBody struct {
	OrderedIDs []string `json:"ordered_ids"`
}
