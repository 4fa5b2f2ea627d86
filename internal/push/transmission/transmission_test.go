package transmission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler, mutate func(*settings.Settings)) (*Client, push.Request) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := settings.Defaults()
	cfg.Transmission.Enabled = true
	cfg.Transmission.URL = srv.URL + "/transmission/rpc"
	if mutate != nil {
		mutate(&cfg)
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	testsupport.WriteFile(t, source, "payload")
	torrent := filepath.Join(dir, "movie.mkv.torrent")
	testsupport.WriteTorrent(t, source, torrent)

	return New(testsupport.StaticSettings{Value: cfg}).WithHTTPClient(srv.Client()), push.Request{TorrentPath: torrent}
}

func TestPushRetriesOnceWithSessionID(t *testing.T) {
	var calls atomic.Int32
	var metainfo string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get(SessionHeader) != "abc" {
			w.Header().Set(SessionHeader, "abc")
			w.WriteHeader(http.StatusConflict)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "tr" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Method != "torrent-add" {
			t.Errorf("unexpected method %q", req.Method)
		}
		metainfo, _ = req.Arguments["metainfo"].(string)
		_, _ = io.WriteString(w, `{"result":"success","arguments":{"torrent-added":{"id":1,"name":"movie.mkv","hashString":"abc"}}}`)
	})
	c, req := newClient(t, handler, func(s *settings.Settings) {
		s.Transmission.Username = "tr"
		s.Transmission.Password = "pw"
	})

	res, err := c.Push(context.Background(), req)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls.Load())
	}
	if res.Message != "Torrent added to Transmission" {
		t.Fatalf("unexpected result %+v", res)
	}
	raw, err := os.ReadFile(req.TorrentPath)
	if err != nil {
		t.Fatalf("read torrent: %v", err)
	}
	if metainfo != base64.StdEncoding.EncodeToString(raw) {
		t.Fatal("metainfo does not match the torrent file")
	}

	// the session id is reused on the next call
	if _, err := c.Push(context.Background(), req); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected cached session id to avoid a 409, got %d calls", calls.Load())
	}
}

func TestPushSecondConflictIsTerminal(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set(SessionHeader, "id-"+string(rune('0'+n)))
		w.WriteHeader(http.StatusConflict)
	})
	c, req := newClient(t, handler, nil)

	_, err := c.Push(context.Background(), req)
	if !errors.Is(err, push.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly two calls, got %d", calls.Load())
	}
}

func TestPushConflictWithoutSessionIDIsTerminal(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	})
	c, req := newClient(t, handler, nil)

	_, err := c.Push(context.Background(), req)
	if !errors.Is(err, push.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry without a session id, got %d calls", calls.Load())
	}
	if c.cachedSession() != "" {
		t.Fatalf("expected no cached session, got %q", c.cachedSession())
	}
}

func TestPushRPCFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"invalid or corrupt torrent file","arguments":{}}`)
	})
	c, req := newClient(t, handler, nil)

	_, err := c.Push(context.Background(), req)
	var perr *push.Error
	if !errors.As(err, &perr) || perr.Kind != push.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestPushAuthRejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, req := newClient(t, handler, nil)
	if _, err := c.Push(context.Background(), req); !errors.Is(err, push.ErrAuth) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestPushDisabled(t *testing.T) {
	c, req := newClient(t, http.NotFoundHandler(), func(s *settings.Settings) { s.Transmission.Enabled = false })
	if _, err := c.Push(context.Background(), req); !errors.Is(err, push.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
