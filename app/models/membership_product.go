package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PRODUCT_TYPE_PREMIUM  = "PREMIUM"
	PRODUCT_TYPE_LIFETIME = "LIFETIME"
)

// MembershipProduct is a purchasable membership tier.
type MembershipProduct struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Title        string          `gorm:"type:varchar(100);not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description,omitempty"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	DurationDays int             `gorm:"not null;default:0" json:"durationDays"`
	Type         string          `gorm:"type:varchar(20);not null;default:'PREMIUM'" json:"type"`
	IsActive     bool            `gorm:"not null;default:true" json:"isActive"`
	SortOrder    int             `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (p *MembershipProduct) IsLifetime() bool {
	return p.Type == PRODUCT_TYPE_LIFETIME
}
