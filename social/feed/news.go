package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewsSource supplies external items merged into feeds.
type NewsSource interface {
	Recent(ctx context.Context, limit int) ([]model.NewsItem, error)
}

// NewsStore keeps imported news in the news_items table.
type NewsStore struct {
	db *gorm.DB
}

// NewNewsStore returns a NewsStore over db.
func NewNewsStore(db *gorm.DB) *NewsStore {
	return &NewsStore{db: db}
}

// Recent returns the newest items by publication time.
func (s *NewsStore) Recent(ctx context.Context, limit int) ([]model.NewsItem, error) {
	var items []model.NewsItem
	err := s.db.WithContext(ctx).Order("published_at DESC, id DESC").Limit(limit).Find(&items).Error
	return items, err
}

// Add stores items whose link is not known yet and returns how many were new.
func (s *NewsStore) Add(ctx context.Context, items []model.NewsItem) (int64, error) {
	valid := make([]model.NewsItem, 0, len(items))
	for _, it := range items {
		it.ID = 0
		it.Title = strings.TrimSpace(it.Title)
		it.Link = strings.TrimSpace(it.Link)
		if it.Title == "" || it.Link == "" {
			return 0, fmt.Errorf("%w: news item needs title and link", social.ErrInvalidArgument)
		}
		if it.PublishedAt.IsZero() {
			it.PublishedAt = time.Now()
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "link"}}, DoNothing: true}).
		Create(&valid)
	return res.RowsAffected, res.Error
}

// Prune deletes items published before cutoff.
func (s *NewsStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("published_at < ?", cutoff).Delete(&model.NewsItem{})
	return res.RowsAffected, res.Error
}
