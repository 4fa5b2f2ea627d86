package packager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/jobs"
	"github.com/Qaquka/aatm-qaquka/internal/media"
	"github.com/Qaquka/aatm-qaquka/internal/mediainfo"
	"github.com/Qaquka/aatm-qaquka/internal/mktorrent"
	"github.com/Qaquka/aatm-qaquka/internal/nfo"
	"github.com/Qaquka/aatm-qaquka/internal/process"
	"github.com/Qaquka/aatm-qaquka/internal/sandbox"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/torrentfile"
)

var (
	// ErrInvalidRequest marks caller mistakes detected before any side effect.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotStarted is returned by Submit before Start or after Shutdown.
	ErrNotStarted = errors.New("packager not started")
)

// Manager runs packaging jobs and the synchronous sidecar/inspection helpers.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Submit(ctx context.Context, req Request) (Accepted, error)
	CreateNFO(ctx context.Context, req NFORequest) (NFOResult, error)
	Inspect(ctx context.Context, path string) (string, json.RawMessage, error)
}

type Config struct {
	MktorrentBinary string
	MaxConcurrent   int
	// PackageTimeout bounds one mktorrent run. Zero means no limit.
	PackageTimeout time.Duration
	InspectTimeout time.Duration
	SweepInterval  time.Duration
	Logger         *logrus.Logger
}

type Request struct {
	Path      string `json:"path"`
	MediaType string `json:"mediaType"`
}

type Accepted struct {
	JobID       string `json:"jobId"`
	OutputDir   string `json:"outputDir"`
	TorrentPath string `json:"torrentPath"`
	NFOPath     string `json:"nfoPath"`
}

type NFORequest struct {
	Path        string `json:"path"`
	MediaType   string `json:"mediaType"`
	TorrentPath string `json:"torrentPath"`
}

type NFOResult struct {
	OK        bool   `json:"ok"`
	NFOPath   string `json:"nfoPath"`
	OutputDir string `json:"outputDir"`
}

type manager struct {
	cfg         Config
	settings    settings.Source
	registry    *jobs.Registry
	broadcaster *jobs.Broadcaster
	runner      *process.Runner
	inspector   *mediainfo.Inspector
	history     service.HistoryService

	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// plan is everything a background job needs. Settings are read once, at
// submission.
type plan struct {
	job      domain.Job
	category media.Category
	torrent  settings.TorrentSettings
}

func NewManager(cfg Config, src settings.Source, registry *jobs.Registry, broadcaster *jobs.Broadcaster, runner *process.Runner, inspector *mediainfo.Inspector, history service.HistoryService) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if strings.TrimSpace(cfg.MktorrentBinary) == "" {
		cfg.MktorrentBinary = "mktorrent"
	}
	if cfg.InspectTimeout <= 0 {
		cfg.InspectTimeout = 2 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if runner == nil {
		runner = process.NewRunner()
	}
	return &manager{
		cfg:         cfg,
		settings:    src,
		registry:    registry,
		broadcaster: broadcaster,
		runner:      runner,
		inspector:   inspector,
		history:     history,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return errors.New("packager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.registry.Run(m.ctx, m.cfg.SweepInterval)
	}()

	m.cfg.Logger.Infof("packager started, %d concurrent jobs", m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("packager stopped")
}

func (m *manager) Submit(ctx context.Context, req Request) (Accepted, error) {
	if strings.TrimSpace(req.Path) == "" {
		return Accepted{}, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	cfg, err := m.settings.Get()
	if err != nil {
		return Accepted{}, fmt.Errorf("load settings: %w", err)
	}

	source, err := sandbox.Validate(req.Path, cfg.BrowseRoots)
	if err != nil {
		return Accepted{}, err
	}
	if _, err := os.Stat(source); err != nil {
		return Accepted{}, fmt.Errorf("%w: source path not found", ErrInvalidRequest)
	}

	category := media.Resolve(req.MediaType, source)
	outputDir := media.OutputDir(cfg.OutputDir, category, source)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Accepted{}, fmt.Errorf("create output dir: %w", err)
	}

	base := filepath.Base(source)
	seed := domain.Job{
		SourcePath:  source,
		OutputDir:   outputDir,
		TorrentPath: filepath.Join(outputDir, base+torrentfile.Extension),
		NFOPath:     filepath.Join(outputDir, base+".nfo"),
		MediaType:   string(category),
	}

	m.mu.RLock()
	runCtx := m.ctx
	m.mu.RUnlock()
	if runCtx == nil || runCtx.Err() != nil {
		return Accepted{}, ErrNotStarted
	}

	job := m.registry.Create(seed)
	m.cfg.Logger.WithField("job_id", job.ID).Infof("packaging %s as %s", source, category)
	m.spawnJob(runCtx, plan{job: job, category: category, torrent: cfg.Torrent})

	return Accepted{
		JobID:       job.ID,
		OutputDir:   job.OutputDir,
		TorrentPath: job.TorrentPath,
		NFOPath:     job.NFOPath,
	}, nil
}

func (m *manager) spawnJob(ctx context.Context, p plan) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			m.failJob(ctx, p, errors.New("server shutting down"))
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.handleJob(ctx, p)
		}
	}()
}

func (m *manager) handleJob(ctx context.Context, p plan) {
	job := p.job
	logger := m.cfg.Logger.WithField("job_id", job.ID)

	m.appendLog(job.ID, "Creating torrent with mktorrent...")

	args, err := mktorrent.Args(mktorrent.Options{
		Private:   p.torrent.PrivateFlag,
		PieceSize: p.torrent.PieceSize,
		Announce:  p.torrent.Announce,
		Source:    p.torrent.Source,
		Output:    job.TorrentPath,
		Input:     job.SourcePath,
	})
	if err != nil {
		m.failJob(ctx, p, err)
		return
	}
	// mktorrent refuses to overwrite its output file
	if err := os.Remove(job.TorrentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.failJob(ctx, p, fmt.Errorf("remove previous torrent: %w", err))
		return
	}

	packCtx := ctx
	if m.cfg.PackageTimeout > 0 {
		var cancel context.CancelFunc
		packCtx, cancel = context.WithTimeout(ctx, m.cfg.PackageTimeout)
		defer cancel()
	}
	err = m.runner.Stream(packCtx, m.cfg.MktorrentBinary, args, mktorrent.Progress, func(chunk process.Chunk) {
		_, _ = m.registry.Update(job.ID, func(j *domain.Job) {
			j.Logs = append(j.Logs, chunk.Text)
			// 100 is reserved for the completed state
			if chunk.HasProgress && chunk.Progress > j.Progress {
				j.Progress = min(chunk.Progress, 99)
			}
		})
		m.broadcaster.Publish(job.ID)
	})
	if err != nil {
		m.failJob(ctx, p, err)
		return
	}

	info, err := torrentfile.Inspect(job.TorrentPath)
	if err != nil {
		m.failJob(ctx, p, fmt.Errorf("verify torrent: %w", err))
		return
	}
	job.InfoHash = info.InfoHash
	_, _ = m.registry.Update(job.ID, func(j *domain.Job) {
		j.InfoHash = info.InfoHash
		j.Logs = append(j.Logs, fmt.Sprintf("Torrent created: %s (%s, infohash %s)", info.Name, humanize.IBytes(uint64(info.TotalLength)), info.InfoHash))
	})
	m.broadcaster.Publish(job.ID)

	report := m.bestEffortInspect(ctx, logger, job.SourcePath)
	if err := nfo.Write(job.NFOPath, nfo.Document{
		SourcePath: job.SourcePath,
		Announce:   p.torrent.Announce,
		Source:     p.torrent.Source,
		MediaInfo:  report,
	}); err != nil {
		m.failJob(ctx, p, fmt.Errorf("write nfo: %w", err))
		return
	}
	m.appendLog(job.ID, "NFO generated")

	if _, err := m.history.RecordPackaging(context.WithoutCancel(ctx), service.PackagingRecord{
		SourcePath:     job.SourcePath,
		OutputDir:      job.OutputDir,
		TorrentPath:    job.TorrentPath,
		NFOPath:        job.NFOPath,
		MediaType:      job.MediaType,
		InfoHash:       job.InfoHash,
		TorrentCreated: true,
		NFOCreated:     true,
	}); err != nil {
		m.failJob(ctx, p, fmt.Errorf("record history: %w", err))
		return
	}

	if _, err := m.registry.Complete(job.ID); err != nil {
		logger.Warnf("complete job: %v", err)
	}
	m.broadcaster.Publish(job.ID)
	logger.Info("packaging completed")
}

// failJob records the failure in history first so that anyone observing the
// terminal state can also find its history entry.
func (m *manager) failJob(ctx context.Context, p plan, failErr error) {
	msg := failErr.Error()
	logger := m.cfg.Logger.WithField("job_id", p.job.ID)

	if _, err := m.history.RecordPackaging(context.WithoutCancel(ctx), service.PackagingRecord{
		SourcePath:  p.job.SourcePath,
		OutputDir:   p.job.OutputDir,
		TorrentPath: p.job.TorrentPath,
		NFOPath:     p.job.NFOPath,
		MediaType:   p.job.MediaType,
		Err:         failErr,
	}); err != nil {
		logger.Errorf("record failure history: %v", err)
	}
	if _, err := m.registry.Fail(p.job.ID, msg); err != nil {
		logger.Warnf("persist failure status: %v", err)
	}
	m.broadcaster.Publish(p.job.ID)
	logger.Error(msg)
}

func (m *manager) appendLog(id, line string) {
	if _, err := m.registry.AppendLog(id, line); err != nil {
		m.cfg.Logger.WithField("job_id", id).Warnf("append log: %v", err)
		return
	}
	m.broadcaster.Publish(id)
}

// bestEffortInspect returns the mediainfo report for path, or nil when the
// tool is missing or fails.
func (m *manager) bestEffortInspect(ctx context.Context, logger *logrus.Entry, path string) json.RawMessage {
	if m.inspector == nil {
		return nil
	}
	inspectCtx, cancel := context.WithTimeout(ctx, m.cfg.InspectTimeout)
	defer cancel()
	if !m.inspector.Available(inspectCtx) {
		logger.Debug("mediainfo unavailable, skipping enrichment")
		return nil
	}
	report, err := m.inspector.Inspect(inspectCtx, path)
	if err != nil {
		logger.Warnf("mediainfo enrichment skipped: %v", err)
		return nil
	}
	return report
}

func (m *manager) CreateNFO(ctx context.Context, req NFORequest) (NFOResult, error) {
	if strings.TrimSpace(req.Path) == "" {
		return NFOResult{}, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	cfg, err := m.settings.Get()
	if err != nil {
		return NFOResult{}, fmt.Errorf("load settings: %w", err)
	}
	source, err := sandbox.Validate(req.Path, cfg.BrowseRoots)
	if err != nil {
		return NFOResult{}, err
	}
	torrentPath := ""
	if strings.TrimSpace(req.TorrentPath) != "" {
		if torrentPath, err = sandbox.Validate(req.TorrentPath, cfg.Roots()); err != nil {
			return NFOResult{}, err
		}
	}

	category := media.Resolve(req.MediaType, source)
	outputDir := media.OutputDir(cfg.OutputDir, category, source)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return NFOResult{}, fmt.Errorf("create output dir: %w", err)
	}
	nfoPath := filepath.Join(outputDir, filepath.Base(source)+".nfo")

	logger := m.cfg.Logger.WithField("source", source)
	report := m.bestEffortInspect(ctx, logger, source)
	if err := nfo.Write(nfoPath, nfo.Document{
		SourcePath: source,
		Announce:   cfg.Torrent.Announce,
		Source:     cfg.Torrent.Source,
		MediaInfo:  report,
	}); err != nil {
		return NFOResult{}, fmt.Errorf("write nfo: %w", err)
	}

	if _, err := m.history.RecordPackaging(ctx, service.PackagingRecord{
		SourcePath:     source,
		OutputDir:      outputDir,
		TorrentPath:    torrentPath,
		NFOPath:        nfoPath,
		MediaType:      string(category),
		TorrentCreated: torrentPath != "",
		NFOCreated:     true,
	}); err != nil {
		return NFOResult{}, fmt.Errorf("record history: %w", err)
	}
	logger.Infof("nfo written to %s", nfoPath)
	return NFOResult{OK: true, NFOPath: nfoPath, OutputDir: outputDir}, nil
}

func (m *manager) Inspect(ctx context.Context, path string) (string, json.RawMessage, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil, fmt.Errorf("%w: path query parameter is required", ErrInvalidRequest)
	}
	cfg, err := m.settings.Get()
	if err != nil {
		return "", nil, fmt.Errorf("load settings: %w", err)
	}
	target, err := sandbox.Validate(path, cfg.BrowseRoots)
	if err != nil {
		return "", nil, err
	}
	if m.inspector == nil {
		return "", nil, mediainfo.ErrUnavailable
	}
	inspectCtx, cancel := context.WithTimeout(ctx, m.cfg.InspectTimeout)
	defer cancel()
	report, err := m.inspector.Inspect(inspectCtx, target)
	if err != nil {
		return "", nil, err
	}
	return target, report, nil
}

var _ Manager = (*manager)(nil)
