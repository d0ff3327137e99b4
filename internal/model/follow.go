package model

import "time"

// Follow 关注关系（Follower 关注 Followee），写入 friends 行
type Follow struct {
	Follower  string    `json:"follower"`
	Followee  string    `json:"followee"`
	CreatedAt time.Time `json:"created_at"`
}
