package domain

// ConversationTurn is one completed user/assistant exchange. Ordinal is
// 1-based and keeps counting after older turns are evicted.
type ConversationTurn struct {
	Ordinal   int    `json:"ordinal"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Answer is the result of one query.
type Answer struct {
	Text      string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}
