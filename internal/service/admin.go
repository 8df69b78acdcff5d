package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/repository"
	"github.com/ticketgate/gateway/internal/ticket"
)

const minPasswordLength = 6

// LoginGuard tracks failed logins per username.
type LoginGuard interface {
	RecordAttempt(ctx context.Context, username, ip string, success bool)
	CheckLocked(ctx context.Context, username string) error
}

// AdminService handles staff registration and login.
type AdminService struct {
	db                  repository.Database
	admins              repository.AdminRepository
	jwtMgr              *auth.JWTManager
	lockout             LoginGuard
	logger              *slog.Logger
	registrationEnabled bool

	now     func() time.Time
	newCode func() (string, error)
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	db repository.Database,
	admins repository.AdminRepository,
	jwtMgr *auth.JWTManager,
	lockout LoginGuard,
	logger *slog.Logger,
	registrationEnabled bool,
) *AdminService {
	return &AdminService{
		db:                  db,
		admins:              admins,
		jwtMgr:              jwtMgr,
		lockout:             lockout,
		logger:              logger,
		registrationEnabled: registrationEnabled,
		now:                 time.Now,
		newCode:             ticket.NewCode,
	}
}

// RegisterInput holds the admin registration fields.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// AdminResult is returned on successful registration or login.
type AdminResult struct {
	Token string        `json:"token"`
	Admin *domain.Admin `json:"admin"`
}

// Register creates a staff account through the public endpoint.
func (s *AdminService) Register(ctx context.Context, input RegisterInput) (*domain.Admin, error) {
	if !s.registrationEnabled {
		return nil, domain.ErrForbidden("admin registration is disabled")
	}
	return s.CreateAdmin(ctx, input)
}

// CreateAdmin validates and stores a new staff account. It bypasses the
// registration switch and is used by the operator CLI.
func (s *AdminService) CreateAdmin(ctx context.Context, input RegisterInput) (*domain.Admin, error) {
	username := strings.TrimSpace(input.Username)
	email := domain.NormalizeEmail(input.Email)
	fullName := strings.TrimSpace(input.FullName)

	if username == "" || email == "" || input.Password == "" || fullName == "" {
		return nil, domain.ErrValidation("username, email, password and full name are required")
	}
	if err := domain.ValidateUsername(username); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < minPasswordLength {
		return nil, domain.ErrValidation("password must be at least 6 characters")
	}

	existing, err := s.admins.FindByUsername(ctx, s.db, username)
	if err != nil {
		return nil, domain.ErrInternal("find admin", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("username already exists")
	}
	existing, err = s.admins.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, domain.ErrInternal("find admin", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	referral, err := s.allocateReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	admin := &domain.Admin{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Active:       true,
		ReferralCode: referral,
	}
	if err := s.admins.Create(ctx, s.db, admin); err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, domain.ErrConflict(duplicateAdminMessage(dup.Constraint))
		}
		return nil, domain.ErrInternal("create admin", err)
	}

	s.logger.Info("admin registered", "admin_id", admin.ID, "username", admin.Username)
	return admin, nil
}

// duplicateAdminMessage names the field behind a lost registration race.
func duplicateAdminMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return "email already exists"
	case strings.Contains(constraint, "referral"):
		return "referral code collision, please retry"
	default:
		return "username already exists"
	}
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
}

// Login authenticates an admin and returns a JWT.
func (s *AdminService) Login(ctx context.Context, input LoginInput) (*AdminResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, domain.ErrValidation("username and password are required")
	}
	if err := s.lockout.CheckLocked(ctx, username); err != nil {
		return nil, err
	}

	admin, err := s.admins.FindByUsername(ctx, s.db, username)
	if err != nil {
		return nil, domain.ErrInternal("find admin", err)
	}
	if admin == nil {
		s.lockout.RecordAttempt(ctx, username, input.IPAddress, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(input.Password)); err != nil {
		s.lockout.RecordAttempt(ctx, username, input.IPAddress, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	s.lockout.RecordAttempt(ctx, username, input.IPAddress, true)

	if !admin.Active {
		return nil, domain.ErrForbidden("account is deactivated")
	}

	now := s.now()
	if err := s.admins.TouchLastLogin(ctx, s.db, admin.ID, now); err != nil {
		s.logger.Warn("update last login failed", "admin_id", admin.ID, "error", err)
	} else {
		admin.LastLogin = &now
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmAdmin, admin.ID, admin.Username, auth.RoleAdmin)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	s.logger.Info("admin logged in", "admin_id", admin.ID, "ip", input.IPAddress)
	return &AdminResult{Token: token, Admin: admin}, nil
}

// VerifyToken checks a bearer token and that its admin is still active.
func (s *AdminService) VerifyToken(ctx context.Context, token string) (*domain.Admin, error) {
	claims, err := s.jwtMgr.ValidateTokenForRealm(token, auth.RealmAdmin)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}
	id, err := claims.SubjectID()
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid token subject")
	}
	return s.activeAdmin(ctx, id)
}

// Me returns the admin behind an authenticated request.
func (s *AdminService) Me(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	return s.activeAdmin(ctx, id)
}

// ResetPassword replaces an admin's password hash.
func (s *AdminService) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < minPasswordLength {
		return domain.ErrValidation("password must be at least 6 characters")
	}
	admin, err := s.admins.FindByUsername(ctx, s.db, strings.TrimSpace(username))
	if err != nil {
		return domain.ErrInternal("find admin", err)
	}
	if admin == nil {
		return domain.ErrNotFound("admin", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.ErrInternal("hash password", err)
	}
	if err := s.admins.UpdatePasswordHash(ctx, s.db, admin.ID, string(hash)); err != nil {
		return err
	}
	s.logger.Info("admin password reset", "admin_id", admin.ID)
	return nil
}

// SetActive enables or disables an admin account.
func (s *AdminService) SetActive(ctx context.Context, username string, active bool) error {
	admin, err := s.admins.FindByUsername(ctx, s.db, strings.TrimSpace(username))
	if err != nil {
		return domain.ErrInternal("find admin", err)
	}
	if admin == nil {
		return domain.ErrNotFound("admin", username)
	}
	return s.admins.SetActive(ctx, s.db, admin.ID, active)
}

func (s *AdminService) activeAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	admin, err := s.admins.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("find admin", err)
	}
	if admin == nil || !admin.Active {
		return nil, domain.ErrUnauthorized("admin not found or inactive")
	}
	return admin, nil
}

func (s *AdminService) allocateReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", domain.ErrInternal("generate referral code", err)
		}
		existing, err := s.admins.FindByReferralCode(ctx, s.db, code)
		if err != nil {
			return "", domain.ErrInternal("check referral code", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", domain.ErrInternal("could not allocate a unique referral code", nil)
}
