package controllers

import (
	"context"

	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/aifans/aifans/internal/pkg/payment"
	"github.com/aifans/aifans/internal/pkg/scheduler"
	"github.com/aifans/aifans/internal/pkg/security"
	"github.com/aifans/aifans/internal/pkg/storage"
)

// StatsReader is satisfied by *counter.Counter.
type StatsReader interface {
	Last(ctx context.Context, days int) ([]counter.DailyStats, error)
}

// JobRunner is satisfied by *scheduler.Scheduler.
type JobRunner interface {
	RunLocked(ctx context.Context, name string, fn scheduler.JobFunc) (bool, error)
}

// Services is everything the HTTP layer calls into.
type Services struct {
	Users    repository.UserRepository
	Tokens   *security.TokenIssuer
	Catalog  *membership.CatalogService
	Codes    *membership.CodeService
	Sweeper  *membership.Sweeper
	Jobs     JobRunner
	Payments *payment.Service
	Provider *payment.Provider
	Settings *payment.SettingsService
	Storage  *storage.Service
	Stats    StatsReader
}

type Controllers struct {
	Auth            *AuthController
	Payment         *PaymentController
	Membership      *MembershipController
	AdminMembership *AdminMembershipController
	Files           *FileController
}

func New(svc *Services) *Controllers {
	return &Controllers{
		Auth:            NewAuthController(svc.Users, svc.Tokens),
		Payment:         NewPaymentController(svc.Payments, svc.Provider),
		Membership:      NewMembershipController(svc.Catalog, svc.Codes, svc.Users),
		AdminMembership: NewAdminMembershipController(svc),
		Files:           NewFileController(svc.Storage),
	}
}
