package repository

import (
	"context"
	"time"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateMembership(ctx context.Context, id uint, role string, expiry *time.Time) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	DowngradeExpiredPremium(ctx context.Context, now time.Time) (int64, error)
	CountByRole(ctx context.Context) (map[string]int64, error)
}

// MembershipProductRepository defines catalog persistence
type MembershipProductRepository interface {
	Create(ctx context.Context, product *models.MembershipProduct) error
	GetByID(ctx context.Context, id uint) (*models.MembershipProduct, error)
	Update(ctx context.Context, product *models.MembershipProduct) error
	Delete(ctx context.Context, id uint) error
	ListActive(ctx context.Context) ([]models.MembershipProduct, error)
	ListAll(ctx context.Context) ([]models.MembershipProduct, error)
}

// OrderFilter narrows admin order listings. Zero values mean "any".
type OrderFilter struct {
	Status string
	UserID uint
	Offset int
	Limit  int
}

// PaymentOrderRepository defines order ledger persistence. Status transitions
// are conditional updates; the bool result reports whether a row changed.
type PaymentOrderRepository interface {
	Create(ctx context.Context, order *models.PaymentOrder) error
	GetByID(ctx context.Context, id uint) (*models.PaymentOrder, error)
	SetQRCode(ctx context.Context, id uint, qrCode string) error
	MarkPaid(ctx context.Context, id uint, tradeNo string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, reason string) (bool, error)
	List(ctx context.Context, filter OrderFilter) ([]models.PaymentOrder, int64, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.PaymentOrder, error)
	CountByProduct(ctx context.Context, productID uint) (int64, error)
}

// CodeFilter narrows redemption code listings.
type CodeFilter struct {
	Used   *bool
	Offset int
	Limit  int
}

// RedemptionCodeRepository defines redemption code persistence
type RedemptionCodeRepository interface {
	Create(ctx context.Context, code *models.RedemptionCode) error
	ExistsByCode(ctx context.Context, code string) (bool, error)
	GetByCode(ctx context.Context, code string) (*models.RedemptionCode, error)
	Claim(ctx context.Context, code string, userID uint, at time.Time) (bool, error)
	DeleteUnused(ctx context.Context, id uint) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.RedemptionCode, error)
	List(ctx context.Context, filter CodeFilter) ([]models.RedemptionCode, int64, error)
}

// PaymentSettingsRepository reads and writes the singleton settings row
type PaymentSettingsRepository interface {
	Get(ctx context.Context) (*models.PaymentSettings, error)
	Save(ctx context.Context, settings *models.PaymentSettings) error
}

// PaymentNotificationRepository stores the callback audit trail
type PaymentNotificationRepository interface {
	Create(ctx context.Context, n *models.PaymentNotification) error
	MarkProcessed(ctx context.Context, id uint, result, processingError string) error
}

// StoredFileRepository tracks uploaded objects and their backend
type StoredFileRepository interface {
	Create(ctx context.Context, f *models.StoredFile) error
	GetByKey(ctx context.Context, key string) (*models.StoredFile, error)
	ListByBackend(ctx context.Context, backend string, afterID uint, limit int) ([]models.StoredFile, error)
	UpdateBackend(ctx context.Context, id uint, backend string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Tx                  Transactor
	User                UserRepository
	Product             MembershipProductRepository
	Order               PaymentOrderRepository
	RedemptionCode      RedemptionCodeRepository
	PaymentSettings     PaymentSettingsRepository
	PaymentNotification PaymentNotificationRepository
	StoredFile          StoredFileRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tx:                  NewTransactor(db),
		User:                NewUserRepository(db),
		Product:             NewMembershipProductRepository(db),
		Order:               NewPaymentOrderRepository(db),
		RedemptionCode:      NewRedemptionCodeRepository(db),
		PaymentSettings:     NewPaymentSettingsRepository(db),
		PaymentNotification: NewPaymentNotificationRepository(db),
		StoredFile:          NewStoredFileRepository(db),
	}
}
