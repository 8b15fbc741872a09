package repository

import (
	"context"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return conn(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := conn(ctx, r.db).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate locks the user row until the surrounding transaction ends.
// Membership changes read-modify-write the expiry and rely on this lock.
func (r *userRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := conn(ctx, r.db).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMembership writes role and expiry. A nil expiry clears the column.
func (r *userRepository) UpdateMembership(ctx context.Context, id uint, role string, expiry *time.Time) error {
	return conn(ctx, r.db).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"role":                role,
			"premium_expiry_date": expiry,
		}).Error
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return conn(ctx, r.db).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

// DowngradeExpiredPremium moves every PREMIUM user whose expiry lies before
// now back to NORMAL in one statement. LIFETIME and ADMIN rows never match.
func (r *userRepository) DowngradeExpiredPremium(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.User{}).
		Where("role = ? AND premium_expiry_date IS NOT NULL AND premium_expiry_date < ?", models.ROLE_PREMIUM, now).
		Updates(map[string]any{
			"role":                models.ROLE_NORMAL,
			"premium_expiry_date": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *userRepository) CountByRole(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Role  string
		Total int64
	}
	err := conn(ctx, r.db).Model(&models.User{}).
		Select("role, COUNT(*) AS total").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Total
	}
	return out, nil
}
