package account

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	u.ID = uuid.New()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return u, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var all []*User
	for _, u := range m.users {
		all = append(all, u)
	}
	return all, len(all), nil
}

type mockCredRepo struct {
	creds map[uuid.UUID]*Credential
}

func newMockCredRepo() *mockCredRepo {
	return &mockCredRepo{creds: make(map[uuid.UUID]*Credential)}
}

func (m *mockCredRepo) Set(_ context.Context, c *Credential) error {
	m.creds[c.UserID] = c
	return nil
}

func (m *mockCredRepo) Get(_ context.Context, userID uuid.UUID) (*Credential, error) {
	c, ok := m.creds[userID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func newTestService() (*Service, *mockUserRepo, *mockCredRepo) {
	users := newMockUserRepo()
	creds := newMockCredRepo()
	issuer := auth.NewTokenIssuer([]byte("test-secret"), "portal-test")
	return NewService(users, creds, issuer), users, creds
}

func TestPasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		want     int
	}{
		{"", 0},
		{"short", 0},
		{"alllowercase", 1},
		{"MixedCasePass", 2},
		{"MixedCase123", 3},
		{"MixedCase123!", 4},
		{"Ab1!", 3},
	}
	for _, tc := range cases {
		if got := PasswordStrength(tc.password); got != tc.want {
			t.Errorf("PasswordStrength(%q) = %d, want %d", tc.password, got, tc.want)
		}
	}
}

func TestRegister(t *testing.T) {
	svc, users, creds := newTestService()

	u, err := svc.Register(context.Background(), &RegisterRequest{
		Email:     "Ana@Example.com",
		Password:  "Str0ngPass!",
		FirstName: "Ana",
		LastName:  "Lopez",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "ana@example.com" {
		t.Errorf("email not normalised: %s", u.Email)
	}
	if u.Role != auth.RolePatient {
		t.Errorf("default role should be patient, got %s", u.Role)
	}
	if u.Status != "active" {
		t.Errorf("expected active status, got %s", u.Status)
	}
	if len(users.users) != 1 || len(creds.creds) != 1 {
		t.Error("user and credential should both be stored")
	}
	cred := creds.creds[u.ID]
	if cred.PasswordHash == "Str0ngPass!" || cred.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
}

func TestRegisterWeakPasswordRejected(t *testing.T) {
	svc, users, _ := newTestService()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email:     "bob@example.com",
		Password:  "weakpass",
		FirstName: "Bob",
		LastName:  "Reed",
	})
	if err == nil {
		t.Fatal("expected weak password rejection")
	}
	if len(users.users) != 0 {
		t.Error("no user should be created on failure")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	req := &RegisterRequest{Email: "dup@example.com", Password: "Str0ngPass!", FirstName: "A", LastName: "B"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), req); err == nil {
		t.Fatal("expected duplicate email rejection")
	}
}

func TestRegisterInvalidRole(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "x@example.com", Password: "Str0ngPass!", FirstName: "A", LastName: "B", Role: "superuser",
	})
	if err == nil {
		t.Fatal("expected invalid role rejection")
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService()
	u, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp, err := svc.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "Str0ngPass!"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
	if resp.User.ID != u.ID {
		t.Error("wrong user returned")
	}

	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "wrong"}); err == nil {
		t.Fatal("expected bad password rejection")
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newTestService()
	u, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), u.ID, "locked"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "Str0ngPass!"}); err == nil {
		t.Fatal("locked account should not log in")
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService()
	u, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "NewStr0ng!",
	})
	if err == nil {
		t.Fatal("wrong current password should be rejected")
	}

	err = svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "Str0ngPass!", NewPassword: "weak",
	})
	if err == nil {
		t.Fatal("weak new password should be rejected")
	}

	err = svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "Str0ngPass!", NewPassword: "NewStr0ng!",
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "ana@example.com", Password: "NewStr0ng!"}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService()
	u, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	newName := "Anna"
	tz := "America/New_York"
	got, err := svc.UpdateProfile(context.Background(), u.ID, &UpdateProfileRequest{FirstName: &newName, Timezone: &tz})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FirstName != "Anna" || got.Timezone != "America/New_York" {
		t.Errorf("profile not updated: %+v", got)
	}
	if got.LastName != "Lopez" {
		t.Error("untouched fields must survive")
	}

	empty := ""
	if _, err := svc.UpdateProfile(context.Background(), u.ID, &UpdateProfileRequest{FirstName: &empty}); err == nil {
		t.Fatal("empty first_name should be rejected")
	}
}

func TestSetStatusInvalid(t *testing.T) {
	svc, _, _ := newTestService()
	u, _ := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if _, err := svc.SetStatus(context.Background(), u.ID, "banned"); err == nil {
		t.Fatal("invalid status should be rejected")
	}
}

type failingCredRepo struct{}

func (failingCredRepo) Set(_ context.Context, _ *Credential) error {
	return fmt.Errorf("credential store unavailable")
}

func (failingCredRepo) Get(_ context.Context, _ uuid.UUID) (*Credential, error) {
	return nil, fmt.Errorf("not found")
}

func TestRegisterRollsBackOnCredentialFailure(t *testing.T) {
	users := newMockUserRepo()
	issuer := auth.NewTokenIssuer([]byte("test-secret"), "portal-test")
	svc := NewService(users, failingCredRepo{}, issuer)
	svc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		snapshot := make(map[uuid.UUID]*User, len(users.users))
		for id, u := range users.users {
			snapshot[id] = u
		}
		if err := fn(ctx); err != nil {
			users.users = snapshot
			return err
		}
		return nil
	})

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "ana@example.com", Password: "Str0ngPass!", FirstName: "Ana", LastName: "Lopez",
	})
	if err == nil {
		t.Fatal("expected registration to fail when the credential write fails")
	}
	if len(users.users) != 0 {
		t.Errorf("user row survived the failed registration: %d rows", len(users.users))
	}
}
