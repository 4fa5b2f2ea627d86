package qbit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

// Name is the registry and history name of this target.
const Name = "qbit"

const (
	loginPath      = "/api/v2/auth/login"
	addPath        = "/api/v2/torrents/add"
	categoriesPath = "/api/v2/torrents/categories"
)

// Client pushes torrents to a qBittorrent seed box through its Web API.
type Client struct {
	settings settings.Source
	session  *Session
	http     *http.Client
	insecure *http.Client
}

// New creates a qBittorrent target. Settings are resolved on every call.
func New(src settings.Source, session *Session) *Client {
	if session == nil {
		session = NewSession()
	}
	return &Client{
		settings: src,
		session:  session,
		http:     &http.Client{},
		insecure: &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in per settings
		}},
	}
}

// WithHTTPClient replaces both HTTP clients, for tests pointing at httptest servers.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	c.insecure = h
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Push(ctx context.Context, req push.Request) (push.Result, error) {
	cfg, err := c.config()
	if err != nil {
		return push.Result{}, err
	}
	if !cfg.Enabled {
		return push.Result{}, fmt.Errorf("%w: qBittorrent", push.ErrDisabled)
	}
	if err := validate(cfg); err != nil {
		return push.Result{}, err
	}

	category := firstNonEmpty(req.Category, cfg.DefaultCategory)
	if category == "" {
		return push.Result{}, fmt.Errorf("%w: category is required", push.ErrInvalidRequest)
	}
	tags := firstNonEmpty(req.Tags, cfg.DefaultTags)

	data, err := os.ReadFile(req.TorrentPath)
	if err != nil {
		return push.Result{}, fmt.Errorf("%w: %v", push.ErrInvalidArtifact, err)
	}

	build := func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="torrents"; filename=%q`, filepath.Base(req.TorrentPath)))
		header.Set("Content-Type", "application/x-bittorrent")
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		fields := [][2]string{
			{"category", category},
			{"autoTMM", "true"},
			{"skip_checking", "false"},
		}
		if tags != "" {
			fields = append(fields, [2]string{"tags", tags})
		}
		for _, f := range fields {
			if err := mw.WriteField(f[0], f[1]); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(cfg.URL, addPath), &body)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", mw.FormDataContentType())
		return r, nil
	}

	resp, body, err := c.do(ctx, cfg, build)
	if err != nil {
		return push.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return push.Result{}, push.StatusError(Name, resp, body, "qBittorrent add failed")
	}
	// qBittorrent answers 200 "Fails." when it rejects the torrent
	if strings.TrimSpace(string(body)) == "Fails." {
		return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "qBittorrent rejected the torrent"}
	}
	return push.Result{Target: Name, Message: "Torrent pushed to qBittorrent seedbox"}, nil
}

// Categories proxies the seed box's category list.
func (c *Client) Categories(ctx context.Context) (json.RawMessage, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	build := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint(cfg.URL, categoriesPath), nil)
	}
	resp, body, err := c.do(ctx, cfg, build)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, push.StatusError(Name, resp, body, "qBittorrent categories failed")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "invalid categories response", Details: push.Truncate(string(body))}
	}
	return json.RawMessage(body), nil
}

// do performs an authenticated call. An authorization rejection triggers one
// forced re-login and exactly one retry.
func (c *Client) do(ctx context.Context, cfg settings.QbitSettings, build func() (*http.Request, error)) (*http.Response, []byte, error) {
	cookie, err := c.login(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	resp, body, err := c.send(cfg, build, cookie)
	if err != nil {
		return nil, nil, err
	}
	if push.Classify(resp.StatusCode) != push.KindAuth {
		return resp, body, nil
	}

	c.session.Invalidate()
	if cookie, err = c.login(ctx, cfg, true); err != nil {
		return nil, nil, err
	}
	return c.send(cfg, build, cookie)
}

func (c *Client) send(cfg settings.QbitSettings, build func() (*http.Request, error), cookie string) (*http.Response, []byte, error) {
	req, err := build()
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Referer", cfg.URL)
	resp, err := c.client(cfg).Do(req)
	if err != nil {
		return nil, nil, push.TransportError(Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, push.TransportError(Name, err)
	}
	return resp, body, nil
}

func (c *Client) login(ctx context.Context, cfg settings.QbitSettings, force bool) (string, error) {
	if !force {
		if cookie, ok := c.session.Cookie(); ok {
			return cookie, nil
		}
	}

	form := url.Values{}
	form.Set("username", cfg.Username)
	form.Set("password", cfg.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(cfg.URL, loginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", cfg.URL)

	resp, err := c.client(cfg).Do(req)
	if err != nil {
		return "", push.TransportError(Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return "", &push.Error{Target: Name, Kind: push.KindAuth, Status: resp.StatusCode, Message: "qBittorrent login failed"}
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "SID" && ck.Value != "" {
			cookie := ck.Name + "=" + ck.Value
			c.session.store(cookie)
			return cookie, nil
		}
	}
	return "", &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "qBittorrent cookie missing"}
}

func (c *Client) config() (settings.QbitSettings, error) {
	s, err := c.settings.Get()
	if err != nil {
		return settings.QbitSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return s.Qbit, nil
}

func validate(cfg settings.QbitSettings) error {
	if strings.TrimSpace(cfg.URL) == "" || cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("%w: qBittorrent url, username and password are required", push.ErrMisconfigured)
	}
	return nil
}

func (c *Client) client(cfg settings.QbitSettings) *http.Client {
	if cfg.InsecureTLS {
		return c.insecure
	}
	return c.http
}

// endpoint resolves an absolute API path against the configured base URL.
func endpoint(base, path string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return strings.TrimRight(base, "/") + path
	}
	return u.ResolveReference(&url.URL{Path: path}).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ push.Target = (*Client)(nil)
