package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/sandbox"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/torrentfile"
)

type ServiceConfig struct {
	// Timeout bounds one push, including any login or retry it performs.
	Timeout time.Duration
	Logger  *logrus.Logger
}

// Service validates artifacts, dispatches to a target and records the outcome.
type Service struct {
	cfg      ServiceConfig
	targets  *Registry
	settings settings.Source
	history  service.HistoryService
}

func NewService(cfg ServiceConfig, targets *Registry, src settings.Source, history service.HistoryService) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Service{cfg: cfg, targets: targets, settings: src, history: history}
}

// Targets lists the registered target names.
func (s *Service) Targets() []string { return s.targets.Names() }

// Push sends req to the named target. Every attempt that reaches the remote
// service is recorded in history, failures included.
func (s *Service) Push(ctx context.Context, name string, req Request) (Result, error) {
	target, ok := s.targets.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	req, err := s.validate(req)
	if err != nil {
		return Result{}, err
	}

	logger := s.cfg.Logger.WithField("target", name)
	pushCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, pushErr := target.Push(pushCtx, req)
	if errors.Is(pushErr, ErrDisabled) || errors.Is(pushErr, ErrMisconfigured) || errors.Is(pushErr, ErrInvalidRequest) {
		return Result{}, pushErr
	}

	if _, err := s.history.RecordPush(context.WithoutCancel(ctx), service.PushRecord{
		Target:      name,
		SourcePath:  req.SourcePath,
		TorrentPath: req.TorrentPath,
		NFOPath:     req.NFOPath,
		MediaType:   req.MediaType,
		Err:         pushErr,
	}); err != nil {
		logger.Errorf("record push history: %v", err)
	}

	if pushErr != nil {
		logger.Warnf("push %s failed: %v", req.TorrentPath, pushErr)
		return Result{}, pushErr
	}
	logger.Infof("pushed %s", req.TorrentPath)
	res.Target = name
	return res, nil
}

// validate resolves artifact paths inside the allowed roots and checks the
// torrent before any remote call.
func (s *Service) validate(req Request) (Request, error) {
	if strings.TrimSpace(req.TorrentPath) == "" {
		return req, fmt.Errorf("%w: torrentPath is required", ErrInvalidArtifact)
	}
	cfg, err := s.settings.Get()
	if err != nil {
		return req, fmt.Errorf("load settings: %w", err)
	}
	roots := cfg.Roots()

	path, err := sandbox.Validate(req.TorrentPath, roots)
	if err != nil {
		return req, err
	}
	if _, err := torrentfile.Inspect(path); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	req.TorrentPath = path

	if strings.TrimSpace(req.NFOPath) != "" {
		nfoPath, err := sandbox.Validate(req.NFOPath, roots)
		if err != nil {
			return req, err
		}
		req.NFOPath = nfoPath
	}
	return req, nil
}
