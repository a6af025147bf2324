package model

import (
	"time"
)

// Follow 关注关系（Follower 关注 Followed）
// 复合主键 (follower_id, followed_id)，同一有序对最多一条；是否允许自己关注自己由调用方负责。
type Follow struct {
	FollowerID uint `gorm:"primaryKey;autoIncrement:false"`
	FollowedID uint `gorm:"primaryKey;autoIncrement:false;index:idx_follow_followed"`
	CreatedAt  time.Time
}

func (Follow) TableName() string { return "followers" }
