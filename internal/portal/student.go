package portal

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/validator"
)

// enrollKey keeps enrollment requests, keyed by course, apart from reviews keyed by enrollment
func enrollKey(courseID string) string { return "course-" + courseID }

// checkoutKey and paymentKey keep the payment family's two id spaces apart
func checkoutKey(enrollmentID string) string { return "enrollment-" + enrollmentID }

func paymentKey(paymentID string) string { return "payment-" + paymentID }

func (p *Portal) Enroll(c *gin.Context) {
	id, ok := p.idParam(c, "courseId")
	if !ok {
		return
	}
	mutate(p, c, events.EnrollmentRequested, enrollKey(c.Param("courseId")), "Enrollment requested", func(ctx context.Context, token string) (*models.Enrollment, error) {
		return p.backend.RequestEnrollment(ctx, token, id)
	})
}

func payAction(e *models.Enrollment) []string {
	if e.Payable() && e.Price > 0 {
		return []string{"pay"}
	}
	return []string{}
}

// MyEnrollments groups the student's enrollments; accepted unpaid ones can be paid
func (p *Portal) MyEnrollments(c *gin.Context) {
	role, enrollments, ok := load(p, c, studentOnly, p.enrollments("mine"))
	if !ok {
		return
	}

	view := ListView[*models.Enrollment]{
		Field:    enrollmentStatus,
		Buckets:  enrollmentStatuses,
		ID:       enrollmentID,
		Actions:  payAction,
		Kind:     events.PaymentConfirmed,
		HubLink:  "/courses",
		InFlight: func(kind events.EventType, id string) bool {
			return p.query.InFlight(kind, checkoutKey(id))
		},
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(enrollments)})
}

// Checkout opens a payment intent for the card widget
func (p *Portal) Checkout(c *gin.Context) {
	id, ok := p.idParam(c, "enrollmentId")
	if !ok {
		return
	}
	role, intent, ok := load(p, c, studentOnly, func(ctx context.Context, s *session.Session) (*models.PaymentIntentResponse, error) {
		return p.backend.CreatePaymentIntent(ctx, s.AccessToken, id)
	})
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: intent})
}

// ConfirmCheckout records the payment once the card widget reports success
func (p *Portal) ConfirmCheckout(c *gin.Context) {
	id, ok := p.idParam(c, "enrollmentId")
	if !ok {
		return
	}
	var req validator.ConfirmPaymentRequest
	if !p.bind(c, &req) {
		return
	}

	mutate(p, c, events.PaymentConfirmed, checkoutKey(c.Param("enrollmentId")), "Payment successful", func(ctx context.Context, token string) (*models.Payment, error) {
		return p.backend.ConfirmPayment(ctx, token, &models.CreatePaymentRequest{
			EnrollmentID:  id,
			TransactionID: req.PaymentIntentID,
		})
	})
}

func (p *Portal) PaymentHistory(c *gin.Context) {
	role, payments, ok := load(p, c, studentOnly, p.payments)
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: payments})
}

func (p *Portal) DeletePayment(c *gin.Context) {
	id, ok := p.idParam(c, "id")
	if !ok {
		return
	}
	mutate(p, c, events.PaymentDeleted, paymentKey(c.Param("id")), "Payment removed from history", done(func(ctx context.Context, token string) error {
		return p.backend.DeletePayment(ctx, token, id)
	}))
}

// ApplyTeacher files the caller's application to teach
func (p *Portal) ApplyTeacher(c *gin.Context) {
	var req models.TeacherApplicationRequest
	if !p.bind(c, &req) {
		return
	}
	s := session.FromContext(c)
	mutate(p, c, events.TeacherApplied, s.Email(), "Application submitted", func(ctx context.Context, token string) (*models.User, error) {
		return p.backend.ApplyTeacher(ctx, token, &req)
	})
}
