package chat

import "sort"

// Session is a named snapshot of a conversation. Timestamp is the last write in unix milliseconds.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// Collection maps persona ids to their saved sessions.
type Collection map[string][]Session

// SortByRecent orders sessions newest first. Ties keep their relative order.
func SortByRecent(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp > sessions[j].Timestamp
	})
}
