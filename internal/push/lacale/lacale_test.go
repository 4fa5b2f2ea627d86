package lacale

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
	"github.com/Qaquka/aatm-qaquka/internal/testsupport"
)

func newClient(t *testing.T, handler http.HandlerFunc, mutate func(*settings.Settings)) (*Client, push.Request) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := settings.Defaults()
	cfg.Lacale.Enabled = true
	cfg.Lacale.APIURL = srv.URL + "/api/upload"
	cfg.Lacale.Token = "tok-123"
	if mutate != nil {
		mutate(&cfg)
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "Movie.2024.mkv")
	testsupport.WriteFile(t, source, "payload")
	torrent := filepath.Join(dir, "Movie.2024.mkv.torrent")
	testsupport.WriteTorrent(t, source, torrent)
	nfoPath := filepath.Join(dir, "Movie.2024.mkv.nfo")
	testsupport.WriteFile(t, nfoPath, "AATM NAS Edition NFO")

	c := New(testsupport.StaticSettings{Value: cfg}).WithHTTPClient(srv.Client())
	return c, push.Request{TorrentPath: torrent, NFOPath: nfoPath, Tags: "1080p"}
}

func TestPushSendsMultipartWithBearer(t *testing.T) {
	var (
		auth   string
		fields = map[string]string{}
		files  = map[string]string{}
	)
	c, req := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		for k, v := range r.MultipartForm.File {
			files[k] = v[0].Filename
		}
		_, _ = io.WriteString(w, `{"id":42}`)
	}, nil)

	res, err := c.Push(context.Background(), req)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if auth != "Bearer tok-123" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if fields["title"] != "Movie.2024.mkv" || fields["category"] != "Films" || fields["tags"] != "1080p" {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if files["torrent"] != "Movie.2024.mkv.torrent" || files["nfo"] != "Movie.2024.mkv.nfo" {
		t.Fatalf("unexpected files %+v", files)
	}
	if res.Details != `{"id":42}` {
		t.Fatalf("unexpected details %q", res.Details)
	}
}

func TestPushClassifiesFailures(t *testing.T) {
	long := strings.Repeat("x", 2*push.MaxDetails)
	tests := []struct {
		status     int
		header     map[string]string
		want       error
		retryAfter time.Duration
	}{
		{status: http.StatusUnauthorized, want: push.ErrAuth},
		{status: http.StatusForbidden, want: push.ErrAuth},
		{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "30"}, want: push.ErrRateLimited, retryAfter: 30 * time.Second},
		{status: http.StatusBadGateway, want: push.ErrUpstream},
		{status: http.StatusBadRequest, want: push.ErrUpstream},
	}
	for _, tt := range tests {
		c, req := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			for k, v := range tt.header {
				w.Header().Set(k, v)
			}
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, long)
		}, nil)

		_, err := c.Push(context.Background(), req)
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		var perr *push.Error
		if !errors.As(err, &perr) {
			t.Fatalf("status %d: expected *push.Error, got %T", tt.status, err)
		}
		if len(perr.Details) != push.MaxDetails {
			t.Fatalf("status %d: details not truncated (%d bytes)", tt.status, len(perr.Details))
		}
		if perr.RetryAfter != tt.retryAfter {
			t.Fatalf("status %d: retry after %v, want %v", tt.status, perr.RetryAfter, tt.retryAfter)
		}
		if strings.Contains(err.Error(), "tok-123") {
			t.Fatalf("token leaked into error: %v", err)
		}
	}
}

func TestPushRequiresConfiguration(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}
	c, req := newClient(t, handler, func(s *settings.Settings) { s.Lacale.Enabled = false })
	if _, err := c.Push(context.Background(), req); !errors.Is(err, push.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	c, req = newClient(t, handler, func(s *settings.Settings) { s.Lacale.Token = "" })
	if _, err := c.Push(context.Background(), req); !errors.Is(err, push.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	c := New(testsupport.StaticSettings{Value: settings.Defaults()})

	got := c.Preview(push.Request{TorrentPath: "/nas/output/Films/Movie/Movie.mkv.torrent"})
	if got.Title != "Movie.mkv" || got.Category != "Films" || got.Tags != "" {
		t.Fatalf("unexpected preview %+v", got)
	}

	got = c.Preview(push.Request{Title: "Custom", Category: "Docs", Tags: "a,b"})
	if got.Title != "Custom" || got.Category != "Docs" || got.Tags != "a,b" {
		t.Fatalf("unexpected preview %+v", got)
	}
}

func TestPushReadsSettingsPerCall(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":1}`)
	}))
	t.Cleanup(srv.Close)

	cfg := settings.Defaults()
	cfg.Lacale.Enabled = true
	cfg.Lacale.APIURL = srv.URL
	cfg.Lacale.Token = "first"
	src := testsupport.NewMutableSettings(cfg)

	dir := t.TempDir()
	source := filepath.Join(dir, "Show.mkv")
	testsupport.WriteFile(t, source, "payload")
	torrent := filepath.Join(dir, "Show.mkv.torrent")
	testsupport.WriteTorrent(t, source, torrent)

	c := New(src).WithHTTPClient(srv.Client())
	req := push.Request{TorrentPath: torrent}
	if _, err := c.Push(context.Background(), req); err != nil {
		t.Fatalf("first push: %v", err)
	}
	src.Set(func(s *settings.Settings) { s.Lacale.Token = "second" })
	if _, err := c.Push(context.Background(), req); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if len(auth) != 2 || auth[0] != "Bearer first" || auth[1] != "Bearer second" {
		t.Fatalf("unexpected authorization headers %v", auth)
	}
}
