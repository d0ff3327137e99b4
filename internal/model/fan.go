package model

import "time"

// Fan 粉丝关系（Fan 是 Username 的粉丝），冗余自 Follow，写入 followers 行
type Fan struct {
	Username  string    `json:"username"`
	Fan       string    `json:"fan"`
	CreatedAt time.Time `json:"created_at"`
}

// Edge returns the follow edge this fan entry mirrors.
func (f Fan) Edge() Follow {
	return Follow{Follower: f.Fan, Followee: f.Username, CreatedAt: f.CreatedAt}
}
