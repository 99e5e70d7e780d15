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

// StudentHandler exposes student profile endpoints.
type StudentHandler struct {
	students    *service.StudentService
	maxFileSize int64
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService, maxFileSize int64) *StudentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &StudentHandler{students: students, maxFileSize: maxFileSize}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Name, BMDC or email search"
// @Param verified query bool false "Filter by account verification"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = c.Query("search")
	if raw := c.Query("verified"); raw != "" {
		if verified, err := strconv.ParseBool(raw); err == nil {
			filter.Verified = &verified
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get a student profile with degrees and course history
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// SetVerification godoc
// @Summary Approve or revoke account verification
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body verificationBody true "Verification flag"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/verification [put]
func (h *StudentHandler) SetVerification(c *gin.Context) {
	var body verificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.SetAccountVerified(c.Request.Context(), c.Param("id"), body.Verified)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UpsertCourseHistory godoc
// @Summary Update one course-history ledger entry
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Student ID"
// @Param categoryId formData string true "Category ID"
// @Param status formData string true "yes or no"
// @Param completionYear formData int false "Completion year"
// @Param document formData file false "Supporting document"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/course-history [put]
func (h *StudentHandler) UpsertCourseHistory(c *gin.Context) {
	req := service.CourseHistoryRequest{
		StudentID:  c.Param("id"),
		CategoryID: c.PostForm("categoryId"),
		Status:     c.PostForm("status"),
	}
	if year, err := strconv.Atoi(c.PostForm("completionYear")); err == nil {
		req.CompletionYear = year
	}
	if fileHeader, err := c.FormFile("document"); err == nil {
		if fileHeader.Size > h.maxFileSize {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document is too large"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read document"))
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read document"))
			return
		}
		req.FileName = fileHeader.Filename
		req.Document = data
	}

	record, err := h.students.UpsertCourseHistory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

type verificationBody struct {
	Verified bool `json:"verified"`
}
