package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

// Name is the registry and history name of this target.
const Name = "transmission"

// SessionHeader carries Transmission's CSRF token.
const SessionHeader = "X-Transmission-Session-Id"

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result    string `json:"result"`
	Arguments struct {
		Added     *addedTorrent `json:"torrent-added"`
		Duplicate *addedTorrent `json:"torrent-duplicate"`
	} `json:"arguments"`
}

type addedTorrent struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
}

// Client adds torrents through the Transmission RPC endpoint.
type Client struct {
	settings settings.Source
	http     *http.Client

	mu        sync.Mutex
	sessionID string
}

func New(src settings.Source) *Client {
	return &Client{settings: src, http: &http.Client{}}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Name() string { return Name }

// Push sends torrent-add. A 409 answer carries a fresh session id; the call
// is repeated once with it and any other rejection is final. A 409 without
// the header is final too.
func (c *Client) Push(ctx context.Context, req push.Request) (push.Result, error) {
	s, err := c.settings.Get()
	if err != nil {
		return push.Result{}, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Transmission
	if !cfg.Enabled {
		return push.Result{}, fmt.Errorf("%w: Transmission", push.ErrDisabled)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return push.Result{}, fmt.Errorf("%w: Transmission url is required", push.ErrMisconfigured)
	}

	data, err := os.ReadFile(req.TorrentPath)
	if err != nil {
		return push.Result{}, fmt.Errorf("%w: %v", push.ErrInvalidArtifact, err)
	}
	payload, err := json.Marshal(rpcRequest{
		Method:    "torrent-add",
		Arguments: map[string]any{"metainfo": base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return push.Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	resp, body, err := c.post(ctx, cfg, payload, c.cachedSession())
	if err != nil {
		return push.Result{}, err
	}
	if resp.StatusCode == http.StatusConflict {
		id := strings.TrimSpace(resp.Header.Get(SessionHeader))
		if id == "" {
			return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "Transmission returned 409 without a session id", Details: push.Truncate(string(body))}
		}
		c.storeSession(id)
		if resp, body, err = c.post(ctx, cfg, payload, id); err != nil {
			return push.Result{}, err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return push.Result{}, push.StatusError(Name, resp, body, "Transmission add failed")
	}

	var out rpcResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "invalid RPC response", Details: push.Truncate(string(body)), Err: err}
	}
	if out.Result != "success" {
		return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.StatusCode, Message: "Transmission add failed: " + out.Result, Details: push.Truncate(string(body))}
	}

	msg := "Torrent added to Transmission"
	if out.Arguments.Duplicate != nil {
		msg = "Torrent already present in Transmission"
	}
	return push.Result{Target: Name, Message: msg, Details: push.Truncate(string(body))}, nil
}

func (c *Client) post(ctx context.Context, cfg settings.TransmissionSettings, payload []byte, sessionID string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := c.http.Do(req)
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

func (c *Client) cachedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) storeSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

var _ push.Target = (*Client)(nil)
