package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

var validStatuses = map[string]bool{
	"active":   true,
	"inactive": true,
	"locked":   true,
}

var validRoles = map[string]bool{
	auth.RolePatient:  true,
	auth.RoleProvider: true,
	auth.RoleAdmin:    true,
}

// MinPasswordScore is the lowest acceptable PasswordStrength score.
const MinPasswordScore = 3

// TxRunner runs fn atomically. Repositories pick the transaction up
// from the context fn receives.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	users  UserRepository
	creds  CredentialRepository
	issuer *auth.TokenIssuer
	inTx   TxRunner
}

func NewService(users UserRepository, creds CredentialRepository, issuer *auth.TokenIssuer) *Service {
	return &Service{users: users, creds: creds, issuer: issuer}
}

// SetTxRunner wires the transaction boundary used by multi-write
// operations. Without one those writes run unwrapped.
func (s *Service) SetTxRunner(run TxRunner) { s.inTx = run }

func (s *Service) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx == nil {
		return fn(ctx)
	}
	return s.inTx(ctx, fn)
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email is required")
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, fmt.Errorf("first_name and last_name are required")
	}
	role := req.Role
	if role == "" {
		role = auth.RolePatient
	}
	if !validRoles[role] {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	if score := PasswordStrength(req.Password); score < MinPasswordScore {
		return nil, fmt.Errorf("password too weak (score %d, need %d)", score, MinPasswordScore)
	}
	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:     email,
		Role:      role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Timezone:  "UTC",
		Language:  "en",
		Status:    "active",
	}
	if req.Phone != "" {
		u.Phone = &req.Phone
	}
	// User row and credential land together or not at all.
	err = s.atomically(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := s.creds.Set(ctx, &Credential{UserID: u.ID, PasswordHash: string(hash)}); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if u.Status != "active" {
		return nil, fmt.Errorf("account is %s", u.Status)
	}
	cred, err := s.creds.Get(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)) != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	token, err := s.issuer.Issue(u.ID.String(), u.Email, []string{u.Role})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResponse{Token: token, User: u}, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// DisplayName returns the user's full name for notifications.
func (s *Service) DisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("user not found")
	}
	return u.FirstName + " " + u.LastName, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req *UpdateProfileRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	if req.FirstName != nil {
		if *req.FirstName == "" {
			return nil, fmt.Errorf("first_name cannot be empty")
		}
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		if *req.LastName == "" {
			return nil, fmt.Errorf("last_name cannot be empty")
		}
		u.LastName = *req.LastName
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.DateOfBirth != nil {
		u.DateOfBirth = req.DateOfBirth
	}
	if req.AvatarURL != nil {
		u.AvatarURL = req.AvatarURL
	}
	if req.Timezone != nil {
		u.Timezone = *req.Timezone
	}
	if req.Language != nil {
		u.Language = *req.Language
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, req *ChangePasswordRequest) error {
	cred, err := s.creds.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("user not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return fmt.Errorf("current password is incorrect")
	}
	if score := PasswordStrength(req.NewPassword); score < MinPasswordScore {
		return fmt.Errorf("password too weak (score %d, need %d)", score, MinPasswordScore)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.Set(ctx, &Credential{UserID: id, PasswordHash: string(hash)})
}

func (s *Service) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	u.TwoFactorEnabled = enabled
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*User, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	u.Status = status
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
