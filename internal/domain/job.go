package domain

import "time"

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one packaging operation tracked in memory.
type Job struct {
	ID          string
	Status      JobStatus
	Progress    int
	Logs        []string
	Error       string
	SourcePath  string
	OutputDir   string
	TorrentPath string
	NFOPath     string
	MediaType   string
	InfoHash    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}

// Clone returns a deep copy safe to hand outside the registry.
func (j Job) Clone() Job {
	out := j
	out.Logs = append([]string(nil), j.Logs...)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// JobSnapshot is what subscribers of the status feed receive.
type JobSnapshot struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Logs     []string  `json:"logs"`
	Error    *string   `json:"error"`
}

// Snapshot builds the feed view of j keeping only the last tail log lines.
func (j Job) Snapshot(tail int) JobSnapshot {
	logs := j.Logs
	if tail > 0 && len(logs) > tail {
		logs = logs[len(logs)-tail:]
	}
	snap := JobSnapshot{
		ID:       j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Logs:     append([]string{}, logs...),
	}
	if j.Error != "" {
		msg := j.Error
		snap.Error = &msg
	}
	return snap
}
