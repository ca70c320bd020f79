package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/clock"
)

// DefaultAdminLevel is assigned when registration names no level.
const DefaultAdminLevel = "admin"

// AccountStore is the persistence used by login flows.
type AccountStore interface {
	CreateAdmin(ctx context.Context, a *attendance.Admin) error
	FindAdmin(ctx context.Context, uniqueID string) (*attendance.Admin, error)
	FindStudent(ctx context.Context, id string) (*attendance.Student, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(subject string, role auth.Role) (string, time.Time, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Role      auth.Role
	UserID    string
	Name      string
	Email     string
	Courses   []string
	Level     string
}

// AdminRegistration describes a new admin account.
type AdminRegistration struct {
	UniqueID string
	Name     string
	Email    string
	Password string
	Level    string
}

// AuthUseCase registers admins and logs in admins and students.
type AuthUseCase struct {
	store  AccountStore
	issuer TokenIssuer
	clock  clock.Clock
	logger *zap.Logger
}

// NewAuthUseCase builds the use case.
func NewAuthUseCase(store AccountStore, issuer TokenIssuer, clk clock.Clock, logger *zap.Logger) *AuthUseCase {
	if clk == nil {
		clk = clock.Real()
	}
	return &AuthUseCase{store: store, issuer: issuer, clock: clk, logger: logger.Named("auth_usecase")}
}

// RegisterAdmin creates an admin account and logs it in.
func (uc *AuthUseCase) RegisterAdmin(ctx context.Context, in AdminRegistration) (*Session, error) {
	uniqueID := strings.TrimSpace(in.UniqueID)
	if uniqueID == "" {
		return nil, invalid("uniqueId", "is required")
	}
	if len(in.Password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	level := strings.TrimSpace(in.Level)
	if level == "" {
		level = DefaultAdminLevel
	}
	admin := &attendance.Admin{
		UniqueID:     uniqueID,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Level:        level,
		CreatedAt:    uc.clock.Now().UTC(),
	}
	if err := uc.store.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}
	uc.logger.Info("admin registered", zap.String("unique_id", uniqueID))
	return uc.adminSession(admin)
}

// LoginAdmin checks uniqueID and password.
func (uc *AuthUseCase) LoginAdmin(ctx context.Context, uniqueID, password string) (*Session, error) {
	admin, err := uc.store.FindAdmin(ctx, strings.TrimSpace(uniqueID))
	if errors.Is(err, attendance.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyPassword(admin.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			uc.logger.Info("admin login rejected", zap.String("unique_id", admin.UniqueID))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return uc.adminSession(admin)
}

// LoginStudent logs in an active student by id. Identity is proven later by
// face verification at check-in.
func (uc *AuthUseCase) LoginStudent(ctx context.Context, studentID string) (*Session, error) {
	student, err := uc.store.FindStudent(ctx, strings.TrimSpace(studentID))
	if errors.Is(err, attendance.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !student.Active {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := uc.issuer.Issue(student.ID, auth.RoleStudent)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: expires,
		Role:      auth.RoleStudent,
		UserID:    student.ID,
		Name:      student.Name,
		Email:     student.Email,
		Courses:   student.Courses,
	}, nil
}

func (uc *AuthUseCase) adminSession(admin *attendance.Admin) (*Session, error) {
	token, expires, err := uc.issuer.Issue(admin.UniqueID, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: expires,
		Role:      auth.RoleAdmin,
		UserID:    admin.UniqueID,
		Name:      admin.Name,
		Email:     admin.Email,
		Level:     admin.Level,
	}, nil
}
