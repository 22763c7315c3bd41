package models

import (
	"time"

	"gorm.io/gorm"
)

// PublishEvent records one status change of a post.
type PublishEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	PostID      string         `gorm:"size:191;not null;index" json:"post_id"`
	FromStatus  string         `gorm:"size:50" json:"from_status"`
	ToStatus    string         `gorm:"size:50;not null" json:"to_status"`
	Error       string         `gorm:"type:text" json:"error"`
	Source      string         `gorm:"size:50" json:"source"`
	PublishedAt *time.Time     `json:"published_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (PublishEvent) TableName() string {
	return "publish_events"
}
