// Package membership applies membership grants from paid orders and
// redemption codes, issues codes, and revokes expired premium access.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// GrantState is the membership-relevant slice of a user row.
type GrantState struct {
	Role   string
	Expiry *time.Time
}

// ComputeGrant returns the state after granting durationDays of productType.
// Premium time always extends from the later of now and the current
// unexpired expiry, whether it comes from an order or a code.
func ComputeGrant(cur GrantState, productType string, durationDays int, now time.Time) GrantState {
	if cur.Role == models.ROLE_LIFETIME {
		return cur
	}

	if productType == models.PRODUCT_TYPE_LIFETIME {
		// ADMIN outranks LIFETIME; the recorded expiry is left alone.
		if cur.Role == models.ROLE_ADMIN {
			return cur
		}
		return GrantState{Role: models.ROLE_LIFETIME, Expiry: nil}
	}

	if durationDays <= 0 {
		return cur
	}

	base := now
	if cur.Expiry != nil && cur.Expiry.After(now) {
		base = *cur.Expiry
	}
	expiry := base.Add(time.Duration(durationDays) * day)

	role := models.ROLE_PREMIUM
	if cur.Role == models.ROLE_ADMIN {
		role = models.ROLE_ADMIN
	}
	return GrantState{Role: role, Expiry: &expiry}
}

// Granter writes grants to user rows.
type Granter struct {
	users repository.UserRepository
	now   Clock
}

func NewGranter(users repository.UserRepository, now Clock) *Granter {
	if now == nil {
		now = utcNow
	}
	return &Granter{users: users, now: now}
}

// Grant applies a grant to userID. Call it with a transaction-bound ctx so the
// user row lock covers the read and the write.
func (g *Granter) Grant(ctx context.Context, userID uint, productType string, durationDays int) (*models.User, error) {
	user, err := g.users.GetByIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("用户不存在")
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	next := ComputeGrant(GrantState{Role: user.Role, Expiry: user.PremiumExpiryDate}, productType, durationDays, g.now())
	if err := g.users.UpdateMembership(ctx, user.ID, next.Role, next.Expiry); err != nil {
		return nil, fmt.Errorf("update membership for user %d: %w", userID, err)
	}

	log.Infof("[Membership] granted %s/%dd to user %d: role %s -> %s, expiry %s -> %s",
		productType, durationDays, userID, user.Role, next.Role, fmtExpiry(user.PremiumExpiryDate), fmtExpiry(next.Expiry))

	user.Role = next.Role
	user.PremiumExpiryDate = next.Expiry
	return user, nil
}

func fmtExpiry(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format(time.RFC3339)
}
