package model

import "time"

// User 用户（username 即主键）
type User struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
