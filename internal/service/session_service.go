package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

type sessionStore interface {
	List(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
}

// CreateSessionRequest holds payload for creating course sessions.
type CreateSessionRequest struct {
	Name            string               `json:"name" validate:"required,max=200"`
	Type            models.SessionType   `json:"type" validate:"required,oneof=TimePeriod Monthly"`
	StartDate       string               `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string               `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	RegistrationFee decimal.Decimal      `json:"registration_fee"`
	Fee             decimal.Decimal      `json:"fee"`
	Status          models.SessionStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

// SessionService handles course session use-cases.
type SessionService struct {
	repo      sessionStore
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionStore, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// List returns sessions, optionally filtered by status.
func (s *SessionService) List(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	sessions, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create validates and stores a new session. Sessions default to Active, which requires a fee.
func (s *SessionService) Create(ctx context.Context, actorID string, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if req.Fee.IsNegative() || req.RegistrationFee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fees must not be negative")
	}

	start, err := optionalDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := optionalDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}

	status := req.Status
	if status == "" {
		status = models.SessionStatusActive
	}
	if status == models.SessionStatusActive && !req.Fee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an active session needs a fee greater than zero")
	}

	session := &models.Session{
		Name:            strings.TrimSpace(req.Name),
		Type:            req.Type,
		StartDate:       start,
		EndDate:         end,
		RegistrationFee: req.RegistrationFee,
		Fee:             req.Fee,
		Status:          status,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.logger.Info("session created", zap.String("session_id", session.ID), zap.String("type", string(session.Type)))
	s.notifier.Notify(ctx, actorID, models.NotificationNewEntry, fmt.Sprintf("Session %s created", session.Name))
	return session, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := clock.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	return &parsed, nil
}
