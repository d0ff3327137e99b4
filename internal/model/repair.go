package model

import (
	"time"

	"github.com/d60-Lab/twissandra/internal/ids"
)

// RepairJob 扇出补偿任务：一次失败的追加写，交给异步 worker 重放
type RepairJob struct {
	Line    LineRef    `json:"line"`
	TweetID ids.TimeID `json:"tweet_id"`
	Author  string     `json:"author"`
	// AllFollowers marks a job whose follower list could not be read; the
	// worker re-reads followers of Author and appends to each timeline.
	AllFollowers bool      `json:"all_followers,omitempty"`
	Attempts     int       `json:"attempts"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
