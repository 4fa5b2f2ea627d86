package mediainfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/process"
)

// ErrUnavailable is returned when the mediainfo CLI is not installed.
var ErrUnavailable = errors.New("mediainfo CLI not installed in container/host")

// Inspector wraps the mediainfo CLI.
type Inspector struct {
	binary string
	runner *process.Runner
}

func NewInspector(binary string, runner *process.Runner) *Inspector {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "mediainfo"
	}
	if runner == nil {
		runner = process.NewRunner()
	}
	return &Inspector{binary: binary, runner: runner}
}

// Available probes the binary with --Version.
func (i *Inspector) Available(ctx context.Context) bool {
	return i.runner.Available(ctx, i.binary, "--Version")
}

// Inspect returns mediainfo's JSON report for target.
func (i *Inspector) Inspect(ctx context.Context, target string) (json.RawMessage, error) {
	if !i.Available(ctx) {
		return nil, ErrUnavailable
	}
	out, err := i.runner.Output(ctx, i.binary, []string{"--Output=JSON", target})
	if err != nil {
		return nil, fmt.Errorf("mediainfo: %w", err)
	}
	if !json.Valid(out) {
		return nil, errors.New("invalid mediainfo output")
	}
	return json.RawMessage(out), nil
}
