package push

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/sandbox"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/testsupport"
)

type stubTarget struct {
	name  string
	err   error
	calls int
	got   Request
	ctx   context.Context
}

func (s *stubTarget) Name() string { return s.name }

func (s *stubTarget) Push(ctx context.Context, req Request) (Result, error) {
	s.calls++
	s.got = req
	s.ctx = ctx
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Message: "ok"}, nil
}

type recordingHistory struct {
	mu     sync.Mutex
	pushes []service.PushRecord
}

func (h *recordingHistory) RecordPackaging(ctx context.Context, rec service.PackagingRecord) (*domain.HistoryEntry, error) {
	return &domain.HistoryEntry{}, nil
}

func (h *recordingHistory) RecordPush(ctx context.Context, rec service.PushRecord) (*domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes = append(h.pushes, rec)
	return &domain.HistoryEntry{}, nil
}

func (h *recordingHistory) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

type fixture struct {
	svc     *Service
	target  *stubTarget
	history *recordingHistory
	torrent string
	nfo     string
	outside string
}

func newFixture(t *testing.T, targetErr error) fixture {
	t.Helper()
	root := t.TempDir()
	out := t.TempDir()
	outside := t.TempDir()

	source := filepath.Join(root, "Show.S01", "e01.mkv")
	testsupport.WriteFile(t, source, "episode")
	torrent := filepath.Join(out, "Show.S01.torrent")
	testsupport.WriteTorrent(t, source, torrent)
	nfo := filepath.Join(out, "Show.S01.nfo")
	testsupport.WriteFile(t, nfo, "nfo")

	cfg := settings.Defaults()
	cfg.BrowseRoots = []string{root}
	cfg.OutputDir = out

	target := &stubTarget{name: "qbit", err: targetErr}
	history := &recordingHistory{}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	svc := NewService(ServiceConfig{Timeout: time.Second, Logger: logger}, NewRegistry(target), testsupport.StaticSettings{Value: cfg}, history)
	return fixture{svc: svc, target: target, history: history, torrent: torrent, nfo: nfo, outside: outside}
}

func TestServicePushRecordsSuccess(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: f.torrent, NFOPath: f.nfo, MediaType: "Series"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if res.Target != "qbit" || res.Message != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := f.target.ctx.Deadline(); !ok {
		t.Fatalf("expected target context to carry the push timeout")
	}
	if len(f.history.pushes) != 1 {
		t.Fatalf("expected one history record, got %d", len(f.history.pushes))
	}
	rec := f.history.pushes[0]
	if rec.Target != "qbit" || rec.Err != nil || rec.MediaType != "Series" || rec.NFOPath == "" {
		t.Fatalf("unexpected history record %+v", rec)
	}
}

func TestServicePushRecordsFailure(t *testing.T) {
	upstream := &Error{Target: "qbit", Kind: KindAuth, Status: 403, Message: "rejected"}
	f := newFixture(t, upstream)

	_, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: f.torrent})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if len(f.history.pushes) != 1 || f.history.pushes[0].Err == nil {
		t.Fatalf("expected the failure to be recorded, got %+v", f.history.pushes)
	}
}

func TestServicePushSkipsHistoryForConfigErrors(t *testing.T) {
	for _, cause := range []error{ErrDisabled, ErrMisconfigured, ErrInvalidRequest} {
		f := newFixture(t, cause)
		if _, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: f.torrent}); !errors.Is(err, cause) {
			t.Fatalf("expected %v, got %v", cause, err)
		}
		if len(f.history.pushes) != 0 {
			t.Fatalf("%v: expected no history, got %+v", cause, f.history.pushes)
		}
	}
}

func TestServicePushValidatesArtifact(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.svc.Push(context.Background(), "qbit", Request{}); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact for empty path, got %v", err)
	}

	escaped := filepath.Join(f.outside, "x.torrent")
	testsupport.WriteFile(t, escaped, "d4:infod4:name1:xee")
	if _, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: escaped}); !errors.Is(err, sandbox.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}

	notTorrent := filepath.Join(filepath.Dir(f.torrent), "junk.torrent")
	testsupport.WriteFile(t, notTorrent, "not bencode")
	if _, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: notTorrent}); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact for junk file, got %v", err)
	}

	outsideNFO := filepath.Join(f.outside, "x.nfo")
	testsupport.WriteFile(t, outsideNFO, "nfo")
	if _, err := f.svc.Push(context.Background(), "qbit", Request{TorrentPath: f.torrent, NFOPath: outsideNFO}); !errors.Is(err, sandbox.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for nfo, got %v", err)
	}

	if f.target.calls != 0 {
		t.Fatalf("target must not be called for rejected artifacts, got %d calls", f.target.calls)
	}
	if len(f.history.pushes) != 0 {
		t.Fatalf("rejected artifacts must not be recorded")
	}
}

func TestServicePushUnknownTarget(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Push(context.Background(), "ftp", Request{TorrentPath: f.torrent}); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
	if got := f.svc.Targets(); len(got) != 1 || got[0] != "qbit" {
		t.Fatalf("unexpected targets %v", got)
	}
}
