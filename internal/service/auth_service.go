package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// PrincipalStore loads and updates one kind of account.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type accountRepository[T any] interface {
	FindByEmail(ctx context.Context, email string) (*T, error)
	FindByID(ctx context.Context, id string) (*T, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type principalAdapter[T any] struct {
	accountRepository[T]
	view func(*T) models.Principal
}

func (a principalAdapter[T]) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	account, err := a.accountRepository.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	p := a.view(account)
	return &p, nil
}

func (a principalAdapter[T]) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	account, err := a.accountRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := a.view(account)
	return &p, nil
}

// AdminPrincipals adapts the admin table to PrincipalStore.
func AdminPrincipals(repo accountRepository[models.Admin]) PrincipalStore {
	return principalAdapter[models.Admin]{repo, func(a *models.Admin) models.Principal {
		return models.Principal{ID: a.ID, Email: a.Email, FullName: a.FullName, PasswordHash: a.PasswordHash, Active: a.Active}
	}}
}

// TeacherPrincipals adapts the teacher table to PrincipalStore.
func TeacherPrincipals(repo accountRepository[models.Teacher]) PrincipalStore {
	return principalAdapter[models.Teacher]{repo, func(t *models.Teacher) models.Principal {
		return models.Principal{ID: t.ID, Email: t.Email, FullName: t.FullName, PasswordHash: t.PasswordHash, Active: t.Active}
	}}
}

// StudentPrincipals adapts the student table to PrincipalStore.
func StudentPrincipals(repo accountRepository[models.Student]) PrincipalStore {
	return principalAdapter[models.Student]{repo, func(s *models.Student) models.Principal {
		return models.Principal{ID: s.ID, Email: s.Email, FullName: s.FullName, PasswordHash: s.PasswordHash, Active: s.Active}
	}}
}

type studentRegistry interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

type passwordResetStore interface {
	Create(ctx context.Context, reset *models.PasswordReset) error
	FindByHash(ctx context.Context, role models.UserRole, tokenHash string) (*models.PasswordReset, error)
	Redeem(ctx context.Context, reset *models.PasswordReset, passwordHash string, usedAt time.Time) error
}

// PasswordResetNotifier delivers reset tokens.
type PasswordResetNotifier interface {
	PasswordReset(ctx context.Context, to models.Principal, role models.UserRole, token string)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	ResetTokenExpiry  time.Duration
}

// AuthService provides login, token validation and password flows for every principal kind.
type AuthService struct {
	stores    map[models.UserRole]PrincipalStore
	students  studentRegistry
	resets    passwordResetStore
	notifier  PasswordResetNotifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	cost      int
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(stores map[models.UserRole]PrincipalStore, students studentRegistry, resets passwordResetStore, notifier PasswordResetNotifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if config.ResetTokenExpiry <= 0 {
		config.ResetTokenExpiry = time.Hour
	}
	return &AuthService{
		stores:    stores,
		students:  students,
		resets:    resets,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		config:    config,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
}

func (s *AuthService) store(role models.UserRole) (PrincipalStore, error) {
	store, ok := s.stores[role]
	if !ok || store == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown account type")
	}
	return store, nil
}

// Login authenticates a principal of the given kind and issues an access token.
func (s *AuthService) Login(ctx context.Context, role models.UserRole, req models.LoginRequest) (*models.LoginResponse, error) {
	store, err := s.store(role)
	if err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	principal, err := store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Internal(err, "failed to fetch account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if !principal.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := store.UpdateLastLogin(ctx, principal.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("role", string(role)), zap.Error(err))
	}
	return s.issue(principal, role)
}

// RegisterStudent creates a student account and logs it in.
func (s *AuthService) RegisterStudent(ctx context.Context, req models.RegisterStudentRequest) (*models.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid registration payload")
	}
	if _, err := s.students.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	student := &models.Student{
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        normalizeOptional(&req.Phone),
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to register student")
	}
	s.logger.Info("student registered", zap.String("student_id", student.ID))
	return s.issue(&models.Principal{ID: student.ID, Email: student.Email, FullName: student.FullName, Active: true}, models.RoleStudent)
}

// ValidateToken parses an access token and checks that it was issued for role.
func (s *AuthService) ValidateToken(tokenString string, role models.UserRole) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(role)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.Role != role {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

// Authenticate validates the token and re-loads the principal, which must still exist and
// be active.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string, role models.UserRole) (*models.JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString, role)
	if err != nil {
		return nil, err
	}
	store, err := s.store(role)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	principal, err := store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
		}
		return nil, appErrors.Internal(err, "failed to load account")
	}
	if !principal.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}
	claims.Email = principal.Email
	claims.FullName = principal.FullName
	return claims, nil
}

// ChangePassword replaces the password of a logged-in principal after checking the old one.
func (s *AuthService) ChangePassword(ctx context.Context, role models.UserRole, principalID string, req models.ChangePasswordRequest) error {
	store, err := s.store(role)
	if err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid change password payload")
	}
	principal, err := store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Internal(err, "failed to load account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}
	return s.setPassword(ctx, store, principalID, req.NewPassword)
}

// ForgotPassword stores a reset token for the account, if any, and emails it. The result is
// the same whether or not the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, role models.UserRole, req models.ForgotPasswordRequest) error {
	store, err := s.store(role)
	if err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid forgot password payload")
	}

	principal, err := store.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("password reset lookup failed", zap.String("role", string(role)), zap.Error(err))
		}
		return nil
	}
	if !principal.Active {
		return nil
	}

	token, err := randomToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", zap.Error(err))
		return nil
	}
	now := s.now().UTC()
	reset := &models.PasswordReset{
		ID:          uuid.NewString(),
		Role:        role,
		PrincipalID: principal.ID,
		TokenHash:   hashToken(token),
		ExpiresAt:   now.Add(s.config.ResetTokenExpiry),
		CreatedAt:   now,
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		s.logger.Error("failed to store reset token", zap.String("role", string(role)), zap.Error(err))
		return nil
	}
	if s.notifier != nil {
		s.notifier.PasswordReset(ctx, *principal, role, token)
	}
	return nil
}

// ResetPassword consumes a reset token. Expired or used tokens are rejected even when the
// hash matches.
func (s *AuthService) ResetPassword(ctx context.Context, role models.UserRole, req models.ResetPasswordRequest) error {
	store, err := s.store(role)
	if err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid reset password payload")
	}
	invalid := appErrors.Clone(appErrors.ErrValidation, "reset token is invalid or expired")

	reset, err := s.resets.FindByHash(ctx, role, hashToken(strings.TrimSpace(req.Token)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		return appErrors.Internal(err, "failed to load reset token")
	}
	now := s.now().UTC()
	if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
		return invalid
	}
	if _, err := store.FindByID(ctx, reset.PrincipalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		return appErrors.Internal(err, "failed to load account")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.resets.Redeem(ctx, reset, string(hash), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		return appErrors.Internal(err, "failed to reset password")
	}
	s.logger.Info("password reset", zap.String("role", string(role)), zap.String("principal_id", reset.PrincipalID))
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, store PrincipalStore, principalID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := store.UpdatePassword(ctx, principalID, string(hash), s.now().UTC()); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}
	return nil
}

func (s *AuthService) issue(principal *models.Principal, role models.UserRole) (*models.LoginResponse, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   principal.ID,
		Role:     role,
		Email:    principal.Email,
		FullName: principal.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   principal.ID,
			Audience:  jwt.ClaimStrings{string(role)},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User: models.UserInfo{
			ID:       principal.ID,
			Email:    principal.Email,
			FullName: principal.FullName,
			Role:     role,
		},
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
