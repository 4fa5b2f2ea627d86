package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
)

// progress streams job snapshots as server-sent events until the job reaches
// a terminal state or the client goes away.
func (h *Handler) progress(c *gin.Context) {
	id := strings.TrimSpace(c.Query("jobId"))
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
		return
	}
	updates, unsubscribe, err := h.deps.Broadcaster.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
		return
	}
	logger := h.deps.Logger.WithField("job_id", id)
	logger.WithField("subscribers", h.deps.Broadcaster.Subscribers(id)).Debug("progress stream opened")
	defer func() {
		unsubscribe()
		logger.WithField("subscribers", h.deps.Broadcaster.Subscribers(id)).Debug("progress stream closed")
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				logger.Errorf("encode snapshot: %v", err)
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

type JobResponse struct {
	ID          string           `json:"id"`
	Status      domain.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	Logs        []string         `json:"logs"`
	Error       string           `json:"error,omitempty"`
	SourcePath  string           `json:"sourcePath"`
	OutputDir   string           `json:"outputDir"`
	TorrentPath string           `json:"torrentPath"`
	NFOPath     string           `json:"nfoPath"`
	MediaType   string           `json:"mediaType"`
	InfoHash    string           `json:"infoHash,omitempty"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
	FinishedAt  *string          `json:"finishedAt,omitempty"`
}

func jobToResponse(job domain.Job) JobResponse {
	resp := JobResponse{
		ID:          job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Logs:        job.Logs,
		Error:       job.Error,
		SourcePath:  job.SourcePath,
		OutputDir:   job.OutputDir,
		TorrentPath: job.TorrentPath,
		NFOPath:     job.NFOPath,
		MediaType:   job.MediaType,
		InfoHash:    job.InfoHash,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	if job.FinishedAt != nil {
		v := job.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	return resp
}
