package models

import "time"

// PAYMENT_SETTINGS_ID is the primary key of the only PaymentSettings row.
const PAYMENT_SETTINGS_ID = 1

// PaymentSettings holds gateway credentials managed from the admin panel.
type PaymentSettings struct {
	ID              uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AlipayAppID     string    `gorm:"type:varchar(64)" json:"alipayAppId"`
	AlipayPrivate   string    `gorm:"column:alipay_private_key;type:text" json:"-"`
	AlipayPublicKey string    `gorm:"type:text" json:"-"`
	GatewayURL      string    `gorm:"type:varchar(255)" json:"gatewayUrl"`
	NotifyURL       string    `gorm:"type:varchar(255)" json:"notifyUrl"`
	Sandbox         bool      `gorm:"not null;default:false" json:"sandbox"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsComplete reports whether the row can sign and verify on its own.
func (s *PaymentSettings) IsComplete() bool {
	return s != nil && s.AlipayAppID != "" && s.AlipayPrivate != "" && s.AlipayPublicKey != ""
}
