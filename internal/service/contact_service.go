package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type contactRepository interface {
	Create(ctx context.Context, msg *models.ContactMessage) error
	List(ctx context.Context, filter models.ContactFilter) ([]models.ContactMessage, int, error)
	MarkHandled(ctx context.Context, id string) (*models.ContactMessage, error)
}

// ContactNotifier forwards new inquiries.
type ContactNotifier interface {
	ContactReceived(ctx context.Context, msg *models.ContactMessage)
}

// ContactService stores contact-form inquiries in the admin inbox.
type ContactService struct {
	repo      contactRepository
	notifier  ContactNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContactService constructs a ContactService.
func NewContactService(repo contactRepository, notifier ContactNotifier, validate *validator.Validate, logger *zap.Logger) *ContactService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// Submit validates and stores an inquiry, then notifies the admin.
func (s *ContactService) Submit(ctx context.Context, req dto.ContactRequest) (*models.ContactMessage, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid contact message")
	}
	msg := &models.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   strings.TrimSpace(req.Phone),
		Subject: strings.TrimSpace(req.Subject),
		Message: req.Message,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Internal(err, "failed to store contact message")
	}
	if s.notifier != nil {
		s.notifier.ContactReceived(ctx, msg)
	}
	return msg, nil
}

// List returns inbox messages newest first.
func (s *ContactService) List(ctx context.Context, filter models.ContactFilter) ([]models.ContactMessage, *models.Pagination, error) {
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list contact messages")
	}
	if items == nil {
		items = []models.ContactMessage{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkHandled flags a message as dealt with.
func (s *ContactService) MarkHandled(ctx context.Context, id string) (*models.ContactMessage, error) {
	msg, err := s.repo.MarkHandled(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contact message not found")
		}
		return nil, appErrors.Internal(err, "failed to update contact message")
	}
	return msg, nil
}
