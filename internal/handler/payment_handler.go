package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aoabd/course-api/internal/service"
	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
)

// PaymentHandler exposes the payment-proof endpoints.
type PaymentHandler struct {
	payments    *service.PaymentService
	maxFileSize int64
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, maxFileSize int64) *PaymentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &PaymentHandler{payments: payments, maxFileSize: maxFileSize}
}

// UploadProof godoc
// @Summary Upload payment proof
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param proof formData file true "Proof document"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment-proof [post]
func (h *PaymentHandler) UploadProof(c *gin.Context) {
	fileHeader, err := c.FormFile("proof")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a proof file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "proof file is too large"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read proof file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read proof file"))
		return
	}

	enrollment, err := h.payments.UploadProof(c.Request.Context(), service.UploadProofRequest{
		EnrollmentID: c.Param("id"),
		FileName:     fileHeader.Filename,
		Data:         data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Accept godoc
// @Summary Accept a pending payment
// @Tags Payments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment/accept [put]
func (h *PaymentHandler) Accept(c *gin.Context) {
	enrollment, err := h.payments.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reject godoc
// @Summary Reject a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body rejectPaymentBody true "Rejection remark"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment/reject [put]
func (h *PaymentHandler) Reject(c *gin.Context) {
	var body rejectPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.payments.Reject(c.Request.Context(), service.RejectPaymentRequest{
		EnrollmentID: c.Param("id"),
		Remark:       body.Remark,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

type rejectPaymentBody struct {
	Remark string `json:"remark"`
}
