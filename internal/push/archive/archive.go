package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/storage"
)

// Name is the registry and history name of this target.
const Name = "archive"

// Factory builds the storage service for the current archive settings.
type Factory func(ctx context.Context, cfg settings.ArchiveSettings) (storage.Service, error)

// S3Factory talks to S3 through the default AWS credential chain.
func S3Factory(ctx context.Context, cfg settings.ArchiveSettings) (storage.Service, error) {
	client, err := storage.NewS3Client(ctx, storage.ClientConfig{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
		Profile:  cfg.Profile,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewS3Service(client), nil
}

// Client copies a torrent and its NFO to an S3 bucket.
type Client struct {
	settings settings.Source
	factory  Factory
	logger   *logrus.Logger
}

func New(src settings.Source, factory Factory, logger *logrus.Logger) *Client {
	if factory == nil {
		factory = S3Factory
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{settings: src, factory: factory, logger: logger}
}

func (c *Client) Name() string { return Name }

func (c *Client) Push(ctx context.Context, req push.Request) (push.Result, error) {
	s, err := c.settings.Get()
	if err != nil {
		return push.Result{}, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Archive
	if !cfg.Enabled {
		return push.Result{}, fmt.Errorf("%w: archive", push.ErrDisabled)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return push.Result{}, fmt.Errorf("%w: archive bucket is required", push.ErrMisconfigured)
	}

	svc, err := c.factory(ctx, cfg)
	if err != nil {
		return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Message: "storage client setup failed", Err: err}
	}

	files := []string{req.TorrentPath}
	if req.NFOPath != "" {
		if _, err := os.Stat(req.NFOPath); err == nil {
			files = append(files, req.NFOPath)
		}
	}

	prefix := KeyPrefix(cfg.KeyPrefix, req)
	logger := c.logger.WithField("target", Name)
	locations, err := svc.UploadFiles(ctx, files, storage.UploadOptions{
		Bucket:           cfg.Bucket,
		KeyPrefix:        prefix,
		ProgressCallback: newUploadProgressLogger(logger),
	})
	if err != nil {
		return push.Result{}, classify(err)
	}

	return push.Result{
		Target:  Name,
		Message: fmt.Sprintf("Archived to s3://%s/%s", cfg.Bucket, prefix),
		Details: strings.Join(locations, "\n"),
	}, nil
}

// List returns the archived objects under the configured key prefix, narrowed
// by prefix when set.
func (c *Client) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s, err := c.settings.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Archive
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: archive", push.ErrDisabled)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: archive bucket is required", push.ErrMisconfigured)
	}
	svc, err := c.factory(ctx, cfg)
	if err != nil {
		return nil, &push.Error{Target: Name, Kind: push.KindUpstream, Message: "storage client setup failed", Err: err}
	}
	full := strings.Trim(path.Join(strings.Trim(cfg.KeyPrefix, "/"), strings.Trim(prefix, "/")), "/")
	objects, err := svc.ListObjects(ctx, cfg.Bucket, full)
	if err != nil {
		return nil, classify(err)
	}
	return objects, nil
}

// KeyPrefix is <base>/<media type>/<torrent name without extension>.
func KeyPrefix(base string, req push.Request) string {
	mediaType := strings.TrimSpace(req.MediaType)
	if mediaType == "" {
		mediaType = "misc"
	}
	name := filepath.Base(req.TorrentPath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.Trim(path.Join(strings.Trim(base, "/"), mediaType, name), "/")
}

var (
	authCodes = map[string]struct{}{
		"AccessDenied":          {},
		"InvalidAccessKeyId":    {},
		"SignatureDoesNotMatch": {},
		"ExpiredToken":          {},
	}
	throttleCodes = map[string]struct{}{
		"SlowDown":             {},
		"Throttling":           {},
		"RequestLimitExceeded": {},
	}
)

// classify maps S3 API error codes onto push failure kinds.
func classify(err error) *push.Error {
	out := &push.Error{Target: Name, Kind: push.KindUpstream, Message: "archive upload failed", Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		out.Details = push.Truncate(code + ": " + apiErr.ErrorMessage())
		if _, ok := authCodes[code]; ok {
			out.Kind = push.KindAuth
			out.Message = "archive credentials rejected"
		} else if _, ok := throttleCodes[code]; ok {
			out.Kind = push.KindRateLimited
			out.Message = "archive rate limit exceeded"
		}
	}
	return out
}

func newUploadProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if now.Sub(lastLog) < 500*time.Millisecond && done != total {
			return
		}
		lastLog = now
		if total == 0 {
			logger.Debugf("upload progress: %s uploaded", humanize.IBytes(uint64(done)))
			return
		}
		percent := float64(done) / float64(total) * 100
		logger.Debugf("upload progress: %.1f%% (%s/%s)", percent, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
	}
}

var _ push.Target = (*Client)(nil)
