package process

import (
	"regexp"
	"strconv"
)

// ProgressParser extracts a 0-100 percentage from a chunk of tool output.
// Each external tool may supply its own.
type ProgressParser func(chunk string) (int, bool)

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// PercentParser picks the first "NN%" token in the chunk, capped at 100.
func PercentParser(chunk string) (int, bool) {
	m := percentPattern.FindStringSubmatch(chunk)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return min(n, 100), true
}
