package models

import "time"

const (
	STORAGE_BACKEND_LOCAL = "local"
	STORAGE_BACKEND_OSS   = "oss"
)

// StoredFile tracks where an uploaded object currently lives.
type StoredFile struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"userId"`
	Key          string    `gorm:"column:object_key;type:varchar(255);not null;uniqueIndex" json:"key"`
	ThumbnailKey string    `gorm:"type:varchar(255)" json:"thumbnailKey,omitempty"`
	OriginalName string    `gorm:"type:varchar(255)" json:"originalName"`
	ContentType  string    `gorm:"type:varchar(100)" json:"contentType"`
	Size         int64     `gorm:"not null;default:0" json:"size"`
	Backend      string    `gorm:"type:varchar(20);not null;default:'local';index" json:"backend"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
