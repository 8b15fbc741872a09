package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_NORMAL   = "NORMAL"
	ROLE_PREMIUM  = "PREMIUM"
	ROLE_LIFETIME = "LIFETIME"
	ROLE_ADMIN    = "ADMIN"

	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email             string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password          string     `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role              string     `gorm:"type:varchar(20);default:'NORMAL';index:idx_users_role_expiry,priority:1" json:"role" validate:"oneof=NORMAL PREMIUM LIFETIME ADMIN"`
	PremiumExpiryDate *time.Time `gorm:"type:timestamp;default:null;index:idx_users_role_expiry,priority:2" json:"premiumExpiryDate"`
	Status            string     `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active disabled"`
	LastLoginAt       *time.Time `gorm:"type:timestamp;default:null" json:"lastLoginAt"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// CreateUser builds a validated NORMAL user with a hashed password.
func CreateUser(name string, email string, password string) (*User, error) {
	u := &User{
		Name:     name,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
		Role:     ROLE_NORMAL,
		Status:   STATUS_ACTIVE,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.Password = pw

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// HasPremiumAccess reports whether the user currently enjoys member benefits.
func (u *User) HasPremiumAccess(now time.Time) bool {
	switch u.Role {
	case ROLE_LIFETIME, ROLE_ADMIN:
		return true
	case ROLE_PREMIUM:
		return u.PremiumExpiryDate != nil && u.PremiumExpiryDate.After(now)
	default:
		return false
	}
}
