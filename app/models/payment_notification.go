package models

import "time"

// PaymentNotification is an audit row for every inbound gateway callback.
type PaymentNotification struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;default:'alipay'" json:"provider"`
	NotifyID        string     `gorm:"type:varchar(128);index" json:"notifyId"`
	OutTradeNo      string     `gorm:"type:varchar(64);index" json:"outTradeNo"`
	TradeStatus     string     `gorm:"type:varchar(32)" json:"tradeStatus"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payloadJson"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signatureValid"`
	Result          string     `gorm:"type:varchar(255)" json:"result"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
}
