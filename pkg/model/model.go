package model

import (
	"time"
)

// TaskType discriminates which derived text is being requested or cached.
// It doubles as the cache column name and the API endpoint selector.
type TaskType string

const (
	TaskTranscribe       TaskType = "transcribe"
	TaskTranslate        TaskType = "translate"
	TaskSummarize        TaskType = "summarize"
	TaskSummarizeCaveman TaskType = "summarize_caveman"
)

// IsSummary reports whether the task produces a summary rather than
// raw transcription/translation text.
func (t TaskType) IsSummary() bool {
	return t == TaskSummarize || t == TaskSummarizeCaveman
}

// Label is the word used when replying to the user.
func (t TaskType) Label() string {
	switch t {
	case TaskTranscribe:
		return "transcript"
	case TaskTranslate:
		return "translation"
	default:
		return "summary"
	}
}

// SourceKind identifies which attachment the media came from.
type SourceKind string

const (
	SourceVoice     SourceKind = "voice"
	SourceVideoNote SourceKind = "video_note"
	SourceVideo     SourceKind = "video"
	SourceAudio     SourceKind = "audio"
)

// MediaReference describes one piece of attached media. ContentID is the
// platform's unique file id, stable across re-deliveries of the same bytes;
// FileID is the short-lived handle used to fetch the bytes.
type MediaReference struct {
	ContentID string
	FileID    string
	Duration  int // seconds
	Size      int64
	MIME      string
	Kind      SourceKind
}

// UsageEvent records one completed paid transcription for per-user stats.
type UsageEvent struct {
	EventID            string    `json:"event_id"`
	UserID             int64     `json:"user_id"`
	ChatID             int64     `json:"chat_id"`
	TaskType           TaskType  `json:"task_type"`
	TranscribedSeconds int64     `json:"transcribed_seconds"`
	CreatedAt          time.Time `json:"created_at"`
}

// UsageStats is the per-user counters row.
type UsageStats struct {
	UserID             int64     `json:"user_id" db:"user_id"`
	TranscribedSeconds int64     `json:"transcribed_seconds" db:"transcribed_seconds"`
	Requests           int64     `json:"requests" db:"requests"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
