package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PaymentHandler struct {
	BaseHandler
	paymentService services.PaymentService
	exportService  services.ExportService
}

func NewPaymentHandler(paymentService services.PaymentService, exportService services.ExportService, logger utils.Logger) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    NewBaseHandler(logger),
		paymentService: paymentService,
		exportService:  exportService,
	}
}

// CreateIntent starts a card payment for an accepted enrollment
// @Summary Create payment intent
// @Description Returns the client secret for the hosted card widget
// @Tags payments
// @Accept json
// @Produce json
// @Param intent body models.CreatePaymentIntentRequest true "Enrollment to pay"
// @Success 201 {object} models.PaymentIntentResponse
// @Failure 422 {object} ErrorResponse "Enrollment not payable"
// @Router /payments/intent [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req models.CreatePaymentIntentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Creating payment intent", "enrollment_id", req.EnrollmentID)

	actor, _ := GetUserFromContext(c)
	intent, err := h.paymentService.CreateIntent(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// ConfirmPayment verifies the charge with the provider and records the payment
// @Summary Record payment
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body models.CreatePaymentRequest true "Confirmed transaction"
// @Success 201 {object} models.Payment
// @Failure 402 {object} ErrorResponse "Charge not confirmed"
// @Failure 409 {object} ErrorResponse "Already paid"
// @Router /payments [post]
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Recording payment", "enrollment_id", req.EnrollmentID, "transaction_id", req.TransactionID)

	actor, _ := GetUserFromContext(c)
	payment, err := h.paymentService.Confirm(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// ListPayments lists the caller's payments, or all payments for admins
// @Summary List payments
// @Tags payments
// @Produce json
// @Success 200 {object} services.PaymentListResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	h.LogRequest(c, "Listing payments")

	var filters repositories.PaymentFilters
	if v := c.Query("course_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			courseID := uint(id)
			filters.CourseID = &courseID
		}
	}
	filters.Limit, filters.Offset = paging(c)

	actor, _ := GetUserFromContext(c)
	payments, err := h.paymentService.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, payments)
}

func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, "Deleting payment", "payment_id", id)

	actor, _ := GetUserFromContext(c)
	if err := h.paymentService.Delete(c.Request.Context(), actor, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message:   "Payment deleted successfully",
		Timestamp: time.Now(),
	})
}

// ExportReport downloads users, courses and payments as a workbook
// @Summary Export report
// @Tags payments
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /payments/export [get]
func (h *PaymentHandler) ExportReport(c *gin.Context) {
	h.LogRequest(c, "Exporting report")

	actor, _ := GetUserFromContext(c)

	// buffer so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := h.exportService.WriteReport(c.Request.Context(), actor, &buf); err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("learnio-report-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
