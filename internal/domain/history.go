package domain

import "time"

// PushOutcome is the three-valued result of a push to a downstream service.
type PushOutcome string

const (
	PushPending PushOutcome = "pending"
	PushOK      PushOutcome = "ok"
	PushKO      PushOutcome = "ko"
)

// HistoryEntry is an immutable record of one packaging or push operation.
type HistoryEntry struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"ts"`
	SourcePath     string      `json:"sourcePath"`
	OutputDir      string      `json:"outputDir,omitempty"`
	TorrentPath    string      `json:"torrentPath"`
	NFOPath        string      `json:"nfoPath"`
	MediaType      string      `json:"mediaType"`
	InfoHash       string      `json:"infoHash,omitempty"`
	Target         string      `json:"target,omitempty"`
	TorrentCreated bool        `json:"torrentCreated"`
	NFOCreated     bool        `json:"nfoCreated"`
	LacaleUpload   PushOutcome `json:"lacaleUpload"`
	QbitPush       PushOutcome `json:"qbitPush"`
	Error          string      `json:"error,omitempty"`
}
