package model

import "time"

// NewsItem is an externally imported headline merged into feeds.
type NewsItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"size:256;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Link        string    `gorm:"uniqueIndex;size:512;not null" json:"link"`
	Source      string    `gorm:"size:64" json:"source"`
	PublishedAt time.Time `gorm:"index:idx_news_published;not null" json:"published_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
