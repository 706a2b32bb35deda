package account

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the portal_user table.
type User struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Role             string     `db:"role" json:"role"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	AvatarURL        *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Timezone         string     `db:"timezone" json:"timezone"`
	Language         string     `db:"language" json:"language"`
	TwoFactorEnabled bool       `db:"two_factor_enabled" json:"two_factor_enabled"`
	Status           string     `db:"status" json:"status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Credential maps to the user_credential table. The hash never leaves the
// service layer.
type Credential struct {
	UserID            uuid.UUID `db:"user_id" json:"-"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	PasswordChangedAt time.Time `db:"password_changed_at" json:"-"`
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// LoginRequest is the payload for standalone login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the user profile.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ChangePasswordRequest is the payload for rotating a password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `json:"last_name,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Timezone    *string    `json:"timezone,omitempty"`
	Language    *string    `json:"language,omitempty"`
}

// PasswordStrength scores a candidate password 0-4: one point each for
// length of at least 8, mixed case, a digit, and a symbol.
func PasswordStrength(password string) int {
	score := 0
	if len(password) >= 8 {
		score++
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if hasUpper && hasLower {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}
	return score
}
