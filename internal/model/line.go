package model

import "github.com/d60-Lab/twissandra/internal/ids"

// PublicLineKey is the userline row holding every tweet. It lives in a single
// partition and grows without bound.
const PublicLineKey = "!PUBLIC!"

// LineKind names the column family a line lives in.
type LineKind string

const (
	Userline LineKind = "userline"
	Timeline LineKind = "timeline"
)

// LineRef addresses one line row.
type LineRef struct {
	Kind LineKind `json:"kind"`
	Key  string   `json:"key"`
}

func UserlineOf(username string) LineRef { return LineRef{Kind: Userline, Key: username} }
func TimelineOf(username string) LineRef { return LineRef{Kind: Timeline, Key: username} }
func PublicLine() LineRef                { return LineRef{Kind: Userline, Key: PublicLineKey} }

func (r LineRef) String() string { return string(r.Kind) + "/" + r.Key }

// LineEntry 时间线项：按 Key 排序，值为推文 ID
type LineEntry struct {
	Key     ids.TimeID `json:"key"`
	TweetID ids.TimeID `json:"tweet_id"`
}

// TimelineItem is a line entry joined back to its tweet and author.
type TimelineItem struct {
	Key    ids.TimeID `json:"key"`
	Tweet  Tweet      `json:"tweet"`
	Author User       `json:"author"`
}

// Page is one reverse-chronological page of a line. NextCursor is empty at
// the end of the line.
type Page struct {
	Items      []TimelineItem `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	Unresolved int            `json:"unresolved,omitempty"`
}
