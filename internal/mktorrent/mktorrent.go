package mktorrent

import (
	"errors"
	"strconv"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/process"
)

// Options describes one mktorrent invocation.
type Options struct {
	Private   bool
	PieceSize int
	Announce  string
	Source    string
	Output    string
	Input     string
}

// Args builds the mktorrent command line for opts.
func Args(opts Options) ([]string, error) {
	if strings.TrimSpace(opts.Output) == "" {
		return nil, errors.New("output path required")
	}
	if strings.TrimSpace(opts.Input) == "" {
		return nil, errors.New("input path required")
	}

	var args []string
	if opts.Private {
		args = append(args, "-p")
	}
	if opts.PieceSize > 0 {
		args = append(args, "-l", strconv.Itoa(opts.PieceSize))
	}
	if a := strings.TrimSpace(opts.Announce); a != "" {
		args = append(args, "-a", a)
	}
	if s := strings.TrimSpace(opts.Source); s != "" {
		args = append(args, "-s", s)
	}
	args = append(args, "-o", opts.Output, opts.Input)
	return args, nil
}

// Progress parses mktorrent's hashing output ("Hashed 12 of 340 pieces" or a
// bare percentage).
func Progress(chunk string) (int, bool) {
	if p, ok := process.PercentParser(chunk); ok {
		return p, true
	}
	return hashedPieces(chunk)
}

func hashedPieces(chunk string) (int, bool) {
	idx := strings.LastIndex(chunk, "Hashed ")
	if idx < 0 {
		return 0, false
	}
	fields := strings.Fields(chunk[idx+len("Hashed "):])
	if len(fields) < 3 || fields[1] != "of" {
		return 0, false
	}
	done, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	total, err := strconv.Atoi(fields[2])
	if err != nil || total <= 0 {
		return 0, false
	}
	return min(100, done*100/total), true
}
