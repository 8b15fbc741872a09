package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ORDER_STATUS_PENDING = "PENDING"
	ORDER_STATUS_SUCCESS = "SUCCESS"
	ORDER_STATUS_FAILED  = "FAILED"
)

// PaymentOrder is never deleted. Failed gateway attempts stay as FAILED rows.
type PaymentOrder struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	UserID        uint               `gorm:"not null;index" json:"userId"`
	ProductID     uint               `gorm:"not null;index" json:"productId"`
	Amount        decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status        string             `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	AlipayTradeNo *string            `gorm:"type:varchar(64);default:null;index" json:"alipayTradeNo,omitempty"`
	QRCode        string             `gorm:"type:varchar(512)" json:"-"`
	FailReason    string             `gorm:"type:varchar(255)" json:"failReason,omitempty"`
	PaidAt        *time.Time         `gorm:"type:timestamp;default:null" json:"paidAt,omitempty"`
	CreatedAt     time.Time          `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
	User          *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product       *MembershipProduct `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (o *PaymentOrder) IsPaid() bool {
	return o.Status == ORDER_STATUS_SUCCESS
}
