package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aoabd/course-api/internal/service"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
)

// CertificateHandler exposes attendance and certificate endpoints.
type CertificateHandler struct {
	certificates *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// MarkAttendance godoc
// @Summary Replace the attendance set of a course
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body attendanceBody true "Present student IDs"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance [put]
func (h *CertificateHandler) MarkAttendance(c *gin.Context) {
	var body attendanceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	err := h.certificates.MarkAttendance(c.Request.Context(), service.MarkAttendanceRequest{
		CourseID:   c.Param("id"),
		PresentIDs: body.PresentIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": true}, nil)
}

// Issue godoc
// @Summary Issue certificates for a course
// @Tags Certificates
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	report, err := h.certificates.IssueCertificates(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Preview godoc
// @Summary Preview a certificate layout
// @Tags Certificates
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param name query string false "Sample student name"
// @Param role query string false "Sample role"
// @Success 200 {file} binary
// @Router /courses/{id}/certificates/preview [get]
func (h *CertificateHandler) Preview(c *gin.Context) {
	name := c.DefaultQuery("name", "Sample Participant")
	role := c.DefaultQuery("role", "Participant")
	data, err := h.certificates.Preview(c.Request.Context(), c.Param("id"), name, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", data)
}

type attendanceBody struct {
	PresentIDs []string `json:"present_ids"`
}
