package browse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Qaquka/aatm-qaquka/internal/sandbox"
)

// ErrNotDirectory is returned when the requested path exists but is a file.
var ErrNotDirectory = errors.New("path is not a directory")

const (
	TypeDir  = "dir"
	TypeFile = "file"
)

type Entry struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Path      string `json:"path"`
	Size      int64  `json:"size,omitempty"`
	SizeHuman string `json:"sizeHuman,omitempty"`
}

type Listing struct {
	Roots   []string `json:"roots"`
	Current string   `json:"current"`
	Entries []Entry  `json:"entries"`
}

// List returns the content of dir, which must lie inside one of roots. An
// empty dir lists the first root.
func List(dir string, roots []string) (Listing, error) {
	if strings.TrimSpace(dir) == "" && len(roots) > 0 {
		dir = roots[0]
	}
	target, err := sandbox.Validate(dir, roots)
	if err != nil {
		return Listing{}, err
	}

	st, err := os.Stat(target)
	if err != nil {
		return Listing{}, fmt.Errorf("stat %s: %w", target, err)
	}
	if !st.IsDir() {
		return Listing{}, fmt.Errorf("%w: %s", ErrNotDirectory, target)
	}

	items, err := os.ReadDir(target)
	if err != nil {
		return Listing{}, fmt.Errorf("read dir %s: %w", target, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		e := Entry{
			Name: item.Name(),
			Type: TypeFile,
			Path: filepath.Join(target, item.Name()),
		}
		// Follow symlinks so a linked directory is still browsable.
		info, err := os.Stat(e.Path)
		if err != nil {
			// dangling link or permission problem, list it as a bare file
			entries = append(entries, e)
			continue
		}
		if info.IsDir() {
			e.Type = TypeDir
		} else {
			e.Size = info.Size()
			e.SizeHuman = humanize.IBytes(uint64(info.Size()))
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == TypeDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return Listing{
		Roots:   append([]string(nil), roots...),
		Current: target,
		Entries: entries,
	}, nil
}
