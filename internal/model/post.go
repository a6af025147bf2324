package model

import "time"

// MaxPostLength 帖子正文上限
const MaxPostLength = 140

// Post 帖子；作者在创建后不可变更
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Body      string    `gorm:"type:varchar(140);not null" json:"body"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Language  string    `gorm:"type:varchar(5)" json:"language"`
	UserID    uint      `gorm:"index:idx_post_author;not null" json:"user_id"`
}

func (Post) TableName() string { return "posts" }
