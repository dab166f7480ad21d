package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/payment"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/validator"
)

const metadataEnrollmentID = "enrollment_id"

type paymentService struct {
	repo      repositories.Repository
	provider  payment.Provider
	currency  string
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewPaymentService(repo repositories.Repository, provider payment.Provider, currency string, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) PaymentService {
	return &paymentService{
		repo:      repo,
		provider:  provider,
		currency:  strings.ToLower(currency),
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// payableEnrollment loads the caller's enrollment and checks it can be charged
func (s *paymentService) payableEnrollment(ctx context.Context, actor *models.User, enrollmentID uint) (*models.Enrollment, error) {
	enrollment, err := s.repo.Enrollment().GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, mapRepoError(err, ErrEnrollmentNotFound)
	}
	if !sameEmail(actor.Email, enrollment.UserEmail) {
		return nil, NewPermissionError(actor.Email, enrollmentID, "enrollment", "pay", "not the enrolled student")
	}

	if verrs := validator.ValidatePayable(enrollment); len(verrs) > 0 {
		rule := ErrNotPayable
		if enrollment.PaymentStatus == models.PaymentStatusPaid {
			rule = ErrAlreadyPaid
		}
		return nil, NewBusinessRuleError("payable", verrs[0].Message, rule, map[string]interface{}{
			"enrollment_id": enrollmentID,
			"errors":        verrs,
		})
	}
	return enrollment, nil
}

func (s *paymentService) CreateIntent(ctx context.Context, actor *models.User, req *models.CreatePaymentIntentRequest) (*models.PaymentIntentResponse, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	enrollment, err := s.payableEnrollment(ctx, actor, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, payment.IntentRequest{
		Amount:   enrollment.Price,
		Currency: s.currency,
		Metadata: map[string]string{
			metadataEnrollmentID: strconv.FormatUint(uint64(enrollment.ID), 10),
			"course_id":          strconv.FormatUint(uint64(enrollment.CourseID), 10),
			"user_email":         enrollment.UserEmail,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	s.logger.Info("Payment intent created", "enrollment_id", enrollment.ID, "intent_id", intent.ID)
	return &models.PaymentIntentResponse{
		EnrollmentID:    enrollment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          enrollment.Price,
		Currency:        s.currency,
	}, nil
}

func (s *paymentService) Confirm(ctx context.Context, actor *models.User, req *models.CreatePaymentRequest) (*models.Payment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.Payment().GetByTransactionID(ctx, req.TransactionID); err == nil {
		return nil, ErrAlreadyPaid
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check transaction: %w", err)
	}

	enrollment, err := s.payableEnrollment(ctx, actor, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	intent, err := s.provider.GetIntent(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentNotConfirmed, err)
		}
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if err := s.matchIntent(intent, enrollment); err != nil {
		s.logger.Warn("Payment verification failed",
			"enrollment_id", enrollment.ID,
			"intent_id", intent.ID,
			"status", intent.Status,
			"error", err)
		return nil, err
	}

	record := &models.Payment{
		EnrollmentID:  enrollment.ID,
		CourseID:      enrollment.CourseID,
		Amount:        enrollment.Price,
		Currency:      intent.Currency,
		TransactionID: intent.ID,
		UserEmail:     enrollment.UserEmail,
		Metadata: map[string]interface{}{
			"course_title": enrollment.CourseTitle,
			"provider":     "stripe",
		},
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Enrollment().MarkPaid(ctx, enrollment.ID); err != nil {
			return err
		}
		if err := tx.Payment().Create(ctx, record); err != nil {
			return err
		}
		return tx.Course().IncrementStudents(ctx, enrollment.CourseID)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) || errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyPaid, err)
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.logger.Info("Payment recorded",
		"payment_id", record.ID,
		"enrollment_id", enrollment.ID,
		"amount", record.Amount)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.PaymentConfirmed, fmt.Sprint(record.ID), actor.Email, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"course_id":     enrollment.CourseID,
	}))
	return record, nil
}

// matchIntent checks that the provider charged exactly this enrollment
func (s *paymentService) matchIntent(intent *payment.Intent, enrollment *models.Enrollment) error {
	if intent.Status != payment.IntentSucceeded {
		return fmt.Errorf("%w: intent status %s", ErrPaymentNotConfirmed, intent.Status)
	}
	if intent.Amount != payment.ToMinorUnits(enrollment.Price) {
		return fmt.Errorf("%w: charged %d, expected %d", ErrPaymentMismatch, intent.Amount, payment.ToMinorUnits(enrollment.Price))
	}
	if !strings.EqualFold(intent.Currency, s.currency) {
		return fmt.Errorf("%w: currency %s", ErrPaymentMismatch, intent.Currency)
	}
	if id := intent.Metadata[metadataEnrollmentID]; id != strconv.FormatUint(uint64(enrollment.ID), 10) {
		return fmt.Errorf("%w: intent belongs to enrollment %q", ErrPaymentMismatch, id)
	}
	return nil
}

func (s *paymentService) List(ctx context.Context, actor *models.User, filters repositories.PaymentFilters) (*PaymentListResponse, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !isAdmin(actor) {
		filters.UserEmail = actor.Email
	}

	filters.Limit, filters.Offset = normalizePage(filters.Limit, filters.Offset)
	payments, total, err := s.repo.Payment().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &PaymentListResponse{Items: payments, Total: total}, nil
}

// Delete hides a payment from its owner's history
func (s *paymentService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if actor == nil {
		return ErrUnauthenticated
	}

	record, err := s.repo.Payment().GetByID(ctx, id)
	if err != nil {
		return mapRepoError(err, ErrPaymentNotFound)
	}
	if !sameEmail(actor.Email, record.UserEmail) {
		return NewPermissionError(actor.Email, id, "payment", "delete", "not the payment owner")
	}

	if err := s.repo.Payment().Delete(ctx, id); err != nil {
		return mapRepoError(err, ErrPaymentNotFound)
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.PaymentDeleted, fmt.Sprint(id), actor.Email, nil))
	return nil
}
