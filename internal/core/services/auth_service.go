package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/jwt"
	"consigaz-valegas/internal/pkg/password"

	"go.uber.org/zap"
)

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
)

// AuthService issues access tokens for admin panel users, distributors and
// employees
type AuthService struct {
	admins       repositories.AdminUserRepository
	distributors repositories.DistributorRepository
	employees    repositories.EmployeeRepository
	audit        *AuditService
	cfg          *config.Config
	log          *zap.Logger
	now          Clock
	hashCost     int
}

// NewAuthService creates a new auth service
func NewAuthService(
	admins repositories.AdminUserRepository,
	distributors repositories.DistributorRepository,
	employees repositories.EmployeeRepository,
	audit *AuditService,
	cfg *config.Config,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		admins:       admins,
		distributors: distributors,
		employees:    employees,
		audit:        audit,
		cfg:          cfg,
		log:          log.Named("auth"),
		now:          time.Now,
		hashCost:     password.DefaultCost,
	}
}

// LoginInput represents login input
type LoginInput struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Principal is who the token was issued to
type Principal struct {
	ID            uint   `json:"id"`
	DistributorID uint   `json:"distributor_id,omitempty"`
	EmployeeID    uint   `json:"employee_id,omitempty"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Role          string `json:"role"`
}

// AuthResponse represents a successful login
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Principal `json:"user"`
}

// LoginAdmin authenticates an ADMIN or SUPERVISOR by username
func (s *AuthService) LoginAdmin(ctx context.Context, in LoginInput, ip string) (*AuthResponse, error) {
	if strings.TrimSpace(in.Login) == "" || in.Password == "" {
		return nil, domain.Invalid("login", "login and password are required")
	}

	user, err := s.admins.GetByUsername(ctx, strings.TrimSpace(in.Login))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Persistence("get admin user", err)
	}
	if !password.Verify(in.Password, user.Password) {
		s.log.Info("admin login rejected", zap.String("username", user.Username), zap.String("ip", ip))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.admins.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.log.Warn("last login update failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	principal := Principal{ID: user.ID, Name: user.Name, Username: user.Username, Role: user.Role}
	resp, err := s.issue(principal)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    Actor{Type: ActorAdmin, ID: user.ID, Name: user.Name, IP: ip},
		Action:   "login",
		Entity:   "admin_user",
		EntityID: user.ID,
	})
	return resp, nil
}

// LoginDistributor authenticates a distributor by email
func (s *AuthService) LoginDistributor(ctx context.Context, in LoginInput, ip string) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(in.Login))
	if email == "" || in.Password == "" {
		return nil, domain.Invalid("login", "email and password are required")
	}

	d, err := s.distributors.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Persistence("get distributor", err)
	}
	if !password.Verify(in.Password, d.Password) {
		s.log.Info("distributor login rejected", zap.String("email", email), zap.String("ip", ip))
		return nil, ErrInvalidCredentials
	}
	if !d.IsActive {
		return nil, ErrAccountInactive
	}

	principal := Principal{
		ID:            d.ID,
		DistributorID: d.ID,
		Name:          d.Name,
		Username:      d.Email,
		Role:          string(domain.RoleDistributor),
	}
	resp, err := s.issue(principal)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    Actor{Type: ActorDistributor, ID: d.ID, Name: d.Name, IP: ip},
		Action:   "login",
		Entity:   "distributor",
		EntityID: d.ID,
	})
	return resp, nil
}

// LoginEmployee authenticates an employee by CPF (any punctuation) or email
func (s *AuthService) LoginEmployee(ctx context.Context, in LoginInput, ip string) (*AuthResponse, error) {
	login := strings.ToLower(strings.TrimSpace(in.Login))
	if login == "" || in.Password == "" {
		return nil, domain.Invalid("login", "CPF or email and password are required")
	}
	if !strings.Contains(login, "@") {
		login = nonDigits.ReplaceAllString(login, "")
	}

	e, err := s.employees.GetByLogin(ctx, login)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Persistence("get employee", err)
	}
	if e.Password == "" || !password.Verify(in.Password, e.Password) {
		s.log.Info("employee login rejected", zap.Uint("employee_id", e.ID), zap.String("ip", ip))
		return nil, ErrInvalidCredentials
	}
	if !e.IsActive {
		return nil, ErrAccountInactive
	}

	principal := Principal{
		ID:         e.ID,
		EmployeeID: e.ID,
		Name:       e.Name,
		Username:   e.Document,
		Role:       string(domain.RoleEmployee),
	}
	resp, err := s.issue(principal)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:    Actor{Type: ActorEmployee, ID: e.ID, Name: e.Name, IP: ip},
		Action:   "login",
		Entity:   "employee",
		EntityID: e.ID,
	})
	return resp, nil
}

// PasswordChange represents a self-service password change
type PasswordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// ChangePassword replaces the caller's password after checking the current
// one. Only employees and distributors manage their own passwords.
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, in PasswordChange) error {
	if in.Current == "" || in.New == "" {
		return domain.Invalid("password", "current and new password are required")
	}
	if !password.Valid(in.New) {
		return domain.Invalid("new_password", "password is too short")
	}
	if in.New == in.Current {
		return domain.Invalid("new_password", "new password must differ from the current one")
	}

	var (
		stored string
		update func(ctx context.Context, id uint, changes map[string]interface{}) (int64, error)
		entity string
	)
	switch actor.Type {
	case ActorEmployee:
		e, err := s.employees.GetByID(ctx, actor.ID)
		if err != nil {
			return notFoundOr(err, "employee")
		}
		stored, update, entity = e.Password, s.employees.Update, "employee"
	case ActorDistributor:
		d, err := s.distributors.GetByID(ctx, actor.ID)
		if err != nil {
			return notFoundOr(err, "distributor")
		}
		stored, update, entity = d.Password, s.distributors.Update, "distributor"
	default:
		return domain.Invalid("role", "password change is for employees and distributors")
	}

	if !password.Verify(in.Current, stored) {
		return domain.Invalid("current_password", "current password is incorrect")
	}
	hashed, err := password.HashWithCost(in.New, s.hashCost)
	if err != nil {
		return err
	}
	if _, err := update(ctx, actor.ID, map[string]interface{}{"password": hashed}); err != nil {
		return domain.Persistence("update password", err)
	}

	s.audit.Record(ctx, AuditEntry{Actor: actor, Action: "change_password", Entity: entity, EntityID: actor.ID})
	return nil
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return domain.NotFound(entity)
	}
	return domain.Persistence("get "+entity, err)
}

// ValidateAccessToken validates an access token
func (s *AuthService) ValidateAccessToken(token string) (*jwt.Claims, error) {
	return jwt.ValidateAccessToken(token, s.cfg.JWT.Secret)
}

func (s *AuthService) issue(p Principal) (*AuthResponse, error) {
	claims := jwt.Claims{Username: p.Username, Role: p.Role}
	switch domain.Role(p.Role) {
	case domain.RoleDistributor:
		claims.DistributorID = p.DistributorID
	case domain.RoleEmployee:
		claims.EmployeeID = p.EmployeeID
	default:
		claims.UserID = p.ID
	}

	ttl := s.cfg.AccessTokenTTL()
	token, err := jwt.GenerateAccessToken(claims, s.cfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(ttl),
		User:        p,
	}, nil
}
