package models

import "time"

const REDEMPTION_CODE_LENGTH = 16

// RedemptionCode flips IsUsed false->true exactly once.
type RedemptionCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Code         string     `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"`
	DurationDays int        `gorm:"not null" json:"durationDays"`
	IsUsed       bool       `gorm:"not null;default:false;index" json:"isUsed"`
	UsedByUserID *uint      `gorm:"default:null;index" json:"usedByUserId,omitempty"`
	UsedAt       *time.Time `gorm:"type:timestamp;default:null" json:"usedAt,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}
