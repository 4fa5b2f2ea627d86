package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUpstream    = errors.New("upstream request failed")

	// ErrDisabled is returned when the target is switched off in settings.
	ErrDisabled = errors.New("target disabled in config")
	// ErrMisconfigured is returned when required target settings are missing.
	ErrMisconfigured = errors.New("target settings missing")
	// ErrInvalidArtifact is returned when the torrent path is missing or not a torrent.
	ErrInvalidArtifact = errors.New("invalid torrentPath")
	// ErrInvalidRequest marks a request missing a required field.
	ErrInvalidRequest = errors.New("invalid push request")
	ErrUnknownTarget  = errors.New("unknown push target")
)

// MaxDetails bounds how much of a remote response body is echoed to callers.
const MaxDetails = 500

// Kind classifies a remote failure.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
)

// Target submits an already produced torrent to one downstream service.
type Target interface {
	Name() string
	Push(ctx context.Context, req Request) (Result, error)
}

// Request carries the artifact and the destination parameters for a push.
type Request struct {
	TorrentPath string `json:"torrentPath"`
	Category    string `json:"category"`
	Tags        string `json:"tags"`
	Title       string `json:"title"`
	SourcePath  string `json:"sourcePath"`
	NFOPath     string `json:"nfoPath"`
	MediaType   string `json:"mediaType"`
}

// Result describes an accepted push.
type Result struct {
	Target  string `json:"target"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error is a classified remote failure.
type Error struct {
	Target     string
	Kind       Kind
	Status     int
	Message    string
	Details    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " failure"
	}
	if e.Target != "" {
		msg = e.Target + ": " + msg
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers test the failure class with errors.Is(err, ErrAuth) and friends.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrUpstream:
		return e.Kind == KindUpstream
	}
	return false
}

// Classify maps an HTTP status to a failure kind.
func Classify(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindUpstream
	}
}

// StatusError builds the classified error for a non-2xx response.
func StatusError(target string, resp *http.Response, body []byte, message string) *Error {
	e := &Error{
		Target:  target,
		Kind:    Classify(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: message,
		Details: Truncate(string(body)),
	}
	if e.Kind == KindRateLimited {
		e.RetryAfter = RetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

// TransportError wraps a failure to reach the remote service at all.
func TransportError(target string, err error) *Error {
	return &Error{Target: target, Kind: KindUpstream, Message: "request failed", Err: err}
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// Truncate cuts s to MaxDetails bytes without splitting a UTF-8 sequence.
func Truncate(s string) string {
	if len(s) <= MaxDetails {
		return s
	}
	cut := MaxDetails
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Registry holds the configured targets by name.
type Registry struct {
	byName map[string]Target
}

func NewRegistry(targets ...Target) *Registry {
	r := &Registry{byName: make(map[string]Target)}
	for _, t := range targets {
		r.Add(t)
	}
	return r
}

func (r *Registry) Add(t Target) {
	r.byName[t.Name()] = t
}

func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
