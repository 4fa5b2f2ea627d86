package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

type stubExecutor struct {
	chunks []Chunk
	err    error
	binary string
	args   []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onChunk func(Stream, string)) error {
	s.binary = binary
	s.args = append([]string(nil), args...)
	for _, c := range s.chunks {
		onChunk(c.Stream, c.Text)
	}
	return s.err
}

func TestPercentParser(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{in: "Hashed 12 of 100 pieces (12%)", want: 12, ok: true},
		{in: "done 100%", want: 100, ok: true},
		{in: "bogus 250%", want: 100, ok: true},
		{in: "no progress here", ok: false},
		{in: "first 5% then 80%", want: 5, ok: true},
	}
	for _, tt := range tests {
		got, ok := PercentParser(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("PercentParser(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStreamAppliesParserAndTrims(t *testing.T) {
	exec := &stubExecutor{chunks: []Chunk{
		{Stream: Stdout, Text: "  hashing 10%\n"},
		{Stream: Stderr, Text: "\n"},
		{Stream: Stderr, Text: "warning: slow disk\n"},
		{Stream: Stdout, Text: "hashing 55%"},
	}}
	runner := NewRunner(WithExecutor(exec))

	var got []Chunk
	err := runner.Stream(context.Background(), "mktorrent", []string{"-o", "x.torrent", "x"}, PercentParser, func(c Chunk) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 non-empty chunks, got %d: %+v", len(got), got)
	}
	if got[0].Text != "hashing 10%" || !got[0].HasProgress || got[0].Progress != 10 {
		t.Fatalf("unexpected first chunk: %+v", got[0])
	}
	if got[1].HasProgress {
		t.Fatalf("stderr warning should not carry progress: %+v", got[1])
	}
	if got[2].Progress != 55 {
		t.Fatalf("expected 55%%, got %+v", got[2])
	}
	if exec.binary != "mktorrent" || strings.Join(exec.args, " ") != "-o x.torrent x" {
		t.Fatalf("unexpected invocation: %s %v", exec.binary, exec.args)
	}
}

func TestStreamFailureCarriesLastStderr(t *testing.T) {
	exec := &stubExecutor{
		chunks: []Chunk{
			{Stream: Stderr, Text: "first problem"},
			{Stream: Stderr, Text: "file already exists"},
		},
		err: errors.New("exit status 1"),
	}
	runner := NewRunner(WithExecutor(exec))

	err := runner.Stream(context.Background(), "mktorrent", nil, PercentParser, nil)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if perr.Error() != "file already exists" {
		t.Fatalf("expected last stderr as message, got %q", perr.Error())
	}
}

func TestStreamFailureGenericMessage(t *testing.T) {
	runner := NewRunner(WithExecutor(&stubExecutor{err: errors.New("boom")}))
	err := runner.Stream(context.Background(), "mktorrent", nil, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "mktorrent") {
		t.Fatalf("expected generic error naming the binary, got %v", err)
	}
}

func TestOutputRealCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := NewRunner(WithTimeout(5 * time.Second))

	out, err := runner.Output(context.Background(), "sh", []string{"-c", "echo hello; echo oops >&2"})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected stdout %q", out)
	}

	_, err = runner.Output(context.Background(), "sh", []string{"-c", "echo bad input >&2; exit 3"})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if perr.ExitCode != 3 || perr.Error() != "bad input" {
		t.Fatalf("unexpected error: code=%d msg=%q", perr.ExitCode, perr.Error())
	}
}

func TestRunTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	runner := NewRunner(WithTimeout(50 * time.Millisecond))
	err := runner.Stream(context.Background(), "sleep", []string{"5"}, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAvailableMissingBinary(t *testing.T) {
	runner := NewRunner()
	if runner.Available(context.Background(), "definitely-not-a-real-binary-aatm", "--version") {
		t.Fatal("expected missing binary to be unavailable")
	}
}
