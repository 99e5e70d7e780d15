package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/internal/service"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
)

// EnrollmentHandler exposes enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	eligibility *service.EligibilityService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, eligibility *service.EligibilityService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, eligibility: eligibility}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.CourseID = c.Query("courseId")
	filter.StudentID = c.Query("studentId")
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Create godoc
// @Summary Enroll in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.UserID
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CheckEligibility godoc
// @Summary Pre-check eligibility for a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EligibilityCheckRequest true "Eligibility payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/eligibility [post]
func (h *EnrollmentHandler) CheckEligibility(c *gin.Context) {
	var req service.EligibilityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.UserID
	}
	verdict, err := h.eligibility.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verdict, nil)
}

// MoveToEnrolled godoc
// @Summary Promote a waitlisted enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/move-to-enrolled [put]
func (h *EnrollmentHandler) MoveToEnrolled(c *gin.Context) {
	enrollment, err := h.enrollments.MoveToEnrolled(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Counts godoc
// @Summary Capacity counts for a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments/counts [get]
func (h *EnrollmentHandler) Counts(c *gin.Context) {
	counts, err := h.enrollments.Counts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}

// ExportRoster godoc
// @Summary Export a course roster
// @Tags Enrollments
// @Produce text/csv
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /courses/{id}/enrollments/export [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	data, contentType, err := h.enrollments.ExportRoster(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
