package model

import (
	"time"

	"github.com/d60-Lab/twissandra/internal/ids"
)

// Tweet 推文主体，创建后不可变
type Tweet struct {
	ID        ids.TimeID `json:"id"`
	Username  string     `json:"username"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}
