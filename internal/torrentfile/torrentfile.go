package torrentfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// Extension is the required suffix for artifacts.
const Extension = ".torrent"

// ErrNotTorrent is returned for paths that are not readable .torrent files.
var ErrNotTorrent = errors.New("invalid torrent path")

// Info summarises a produced artifact.
type Info struct {
	InfoHash    string
	Name        string
	TotalLength int64
	PieceLength int64
	Private     bool
	Announce    string
}

// Check verifies path is an existing regular file with the .torrent extension.
func Check(path string) error {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return fmt.Errorf("%w: %s", ErrNotTorrent, filepath.Base(path))
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotTorrent, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file", ErrNotTorrent)
	}
	return nil
}

// Inspect parses the artifact at path and returns its metadata.
func Inspect(path string) (Info, error) {
	if err := Check(path); err != nil {
		return Info{}, err
	}
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotTorrent, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return Info{}, fmt.Errorf("%w: decode info: %v", ErrNotTorrent, err)
	}

	out := Info{
		InfoHash:    mi.HashInfoBytes().HexString(),
		Name:        info.BestName(),
		TotalLength: info.TotalLength(),
		PieceLength: info.PieceLength,
		Announce:    mi.Announce,
	}
	if info.Private != nil {
		out.Private = *info.Private
	}
	return out, nil
}
