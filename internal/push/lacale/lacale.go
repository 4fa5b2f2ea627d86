package lacale

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

// Name is the registry and history name of this target.
const Name = "lacale"

const defaultCategory = "Films"

// Preview is what an upload would send, shown to the operator beforehand.
type Preview struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Tags     string `json:"tags"`
}

// Client uploads torrents to the La-Cale tracker API with a bearer token.
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

// Preview resolves the title, category and tags an upload of req would use.
func (c *Client) Preview(req push.Request) Preview {
	category := strings.TrimSpace(req.Category)
	if category == "" && req.MediaType != "" {
		if s, err := c.settings.Get(); err == nil {
			category = s.Category(req.MediaType)
		}
	}
	if category == "" {
		category = defaultCategory
	}
	title := strings.TrimSpace(req.Title)
	if title == "" && req.TorrentPath != "" {
		base := filepath.Base(req.TorrentPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Preview{Title: title, Category: category, Tags: req.Tags}
}

func (c *Client) Push(ctx context.Context, req push.Request) (push.Result, error) {
	s, err := c.settings.Get()
	if err != nil {
		return push.Result{}, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Lacale
	if !cfg.Enabled {
		return push.Result{}, fmt.Errorf("%w: La-Cale", push.ErrDisabled)
	}
	if strings.TrimSpace(cfg.APIURL) == "" || strings.TrimSpace(cfg.Token) == "" {
		return push.Result{}, fmt.Errorf("%w: La-Cale API settings missing", push.ErrMisconfigured)
	}

	body, contentType, err := c.form(req)
	if err != nil {
		return push.Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, body)
	if err != nil {
		return push.Result{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Token)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return push.Result{}, push.TransportError(Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return push.Result{}, push.TransportError(Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "La-Cale upload failed"
		switch push.Classify(resp.StatusCode) {
		case push.KindAuth:
			msg = "La-Cale authentication failed"
		case push.KindRateLimited:
			msg = "La-Cale rate limit exceeded"
		}
		return push.Result{}, push.StatusError(Name, resp, respBody, msg)
	}
	return push.Result{Target: Name, Message: "Uploaded to La-Cale", Details: push.Truncate(string(respBody))}, nil
}

func (c *Client) form(req push.Request) (io.Reader, string, error) {
	preview := c.Preview(req)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := attach(mw, "torrent", req.TorrentPath); err != nil {
		return nil, "", fmt.Errorf("%w: %v", push.ErrInvalidArtifact, err)
	}
	if req.NFOPath != "" {
		if _, err := os.Stat(req.NFOPath); err == nil {
			if err := attach(mw, "nfo", req.NFOPath); err != nil {
				return nil, "", fmt.Errorf("attach nfo: %w", err)
			}
		}
	}
	for _, f := range [][2]string{
		{"category", preview.Category},
		{"tags", preview.Tags},
		{"title", preview.Title},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func attach(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

var _ push.Target = (*Client)(nil)
