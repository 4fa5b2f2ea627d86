package deluge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

// Name is the registry and history name of this target.
const Name = "deluge"

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Client adds torrents through the Deluge Web UI JSON-RPC endpoint. Every
// push logs in first; the session cookie is used for that push only.
type Client struct {
	settings settings.Source
	http     *http.Client
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

func (c *Client) Push(ctx context.Context, req push.Request) (push.Result, error) {
	s, err := c.settings.Get()
	if err != nil {
		return push.Result{}, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Deluge
	if !cfg.Enabled {
		return push.Result{}, fmt.Errorf("%w: Deluge", push.ErrDisabled)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return push.Result{}, fmt.Errorf("%w: Deluge url is required", push.ErrMisconfigured)
	}

	data, err := os.ReadFile(req.TorrentPath)
	if err != nil {
		return push.Result{}, fmt.Errorf("%w: %v", push.ErrInvalidArtifact, err)
	}

	cookie, err := c.login(ctx, cfg)
	if err != nil {
		return push.Result{}, err
	}

	out, raw, err := c.call(ctx, cfg.URL, cookie, rpcRequest{
		Method: "core.add_torrent_file",
		Params: []any{filepath.Base(req.TorrentPath), base64.StdEncoding.EncodeToString(data), map[string]any{}},
		ID:     2,
	}, "Deluge add failed")
	if err != nil {
		return push.Result{}, err
	}
	if out.Error != nil {
		return push.Result{}, &push.Error{Target: Name, Kind: push.KindUpstream, Message: "Deluge add failed: " + out.Error.Message, Details: push.Truncate(string(raw))}
	}
	return push.Result{Target: Name, Message: "Torrent added to Deluge", Details: push.Truncate(string(raw))}, nil
}

// login runs auth.login and returns the session cookie to thread into the
// next call.
func (c *Client) login(ctx context.Context, cfg settings.DelugeSettings) (string, error) {
	resp, err := c.post(ctx, cfg.URL, "", rpcRequest{Method: "auth.login", Params: []any{cfg.Password}, ID: 1})
	if err != nil {
		return "", err
	}
	out, raw, err := decode(resp, "Deluge login failed")
	if err != nil {
		return "", err
	}
	var ok bool
	if out.Error != nil || json.Unmarshal(out.Result, &ok) != nil || !ok {
		return "", &push.Error{Target: Name, Kind: push.KindAuth, Status: resp.status, Message: "Deluge login failed", Details: push.Truncate(string(raw))}
	}
	cookie := ""
	for _, ck := range resp.cookies {
		if ck.Value != "" {
			cookie = ck.Name + "=" + ck.Value
			break
		}
	}
	return cookie, nil
}

func (c *Client) call(ctx context.Context, url, cookie string, rpc rpcRequest, failure string) (rpcResponse, []byte, error) {
	resp, err := c.post(ctx, url, cookie, rpc)
	if err != nil {
		return rpcResponse{}, nil, err
	}
	return decode(resp, failure)
}

type response struct {
	status  int
	cookies []*http.Cookie
	body    []byte
	raw     *http.Response
}

func (c *Client) post(ctx context.Context, url, cookie string, rpc rpcRequest) (*response, error) {
	payload, err := json.Marshal(rpc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", rpc.Method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, push.TransportError(Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, push.TransportError(Name, err)
	}
	return &response{status: resp.StatusCode, cookies: resp.Cookies(), body: body, raw: resp}, nil
}

func decode(resp *response, failure string) (rpcResponse, []byte, error) {
	if resp.status < 200 || resp.status > 299 {
		return rpcResponse{}, resp.body, push.StatusError(Name, resp.raw, resp.body, failure)
	}
	var out rpcResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return rpcResponse{}, resp.body, &push.Error{Target: Name, Kind: push.KindUpstream, Status: resp.status, Message: "invalid RPC response", Details: push.Truncate(string(resp.body)), Err: err}
	}
	return out, resp.body, nil
}

var _ push.Target = (*Client)(nil)
