package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/internal/service"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
)

// CourseHandler exposes course management endpoints.
type CourseHandler struct {
	courses     *service.CourseService
	maxFileSize int64
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, maxFileSize int64) *CourseHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &CourseHandler{courses: courses, maxFileSize: maxFileSize}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param categoryId query string false "Filter by category"
// @Param status query string false "running or archived"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.CategoryID = c.Query("categoryId")
	filter.Status = models.CourseStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a course with its relations
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseInput true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var input service.CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseInput true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var input service.CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// SetCoverPhoto godoc
// @Summary Upload a course cover photo
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Course ID"
// @Param cover formData file true "Cover image"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/cover [put]
func (h *CourseHandler) SetCoverPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("cover")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a cover file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "cover file is too large"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read cover file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read cover file"))
		return
	}

	course, err := h.courses.SetCoverPhoto(c.Request.Context(), c.Param("id"), fileHeader.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
