package domain

import "time"

// TranscriptEntry is one finished question/answer exchange of a chat session.
type TranscriptEntry struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Query     string      `json:"query"`
	Answer    string      `json:"answer"`
	Sources   []Source    `json:"sources"`
	Model     string      `json:"model"`
	State     AnswerState `json:"state"`
	ErrorKind ErrorKind   `json:"error_kind,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
