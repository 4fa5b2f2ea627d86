package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// WriteFile creates path (and its parents) with the given content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// BuildTorrent writes a real .torrent for source at out, the way mktorrent would.
func BuildTorrent(source, out, announce string, private bool) error {
	info := metainfo.Info{PieceLength: 16 * 1024}
	if err := info.BuildFromFilePath(source); err != nil {
		return err
	}
	if private {
		p := true
		info.Private = &p
	}
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return err
	}
	mi := metainfo.MetaInfo{Announce: announce, InfoBytes: infoBytes}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := mi.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTorrent is BuildTorrent that fails the test on error.
func WriteTorrent(t testing.TB, source, out string) {
	t.Helper()
	if err := BuildTorrent(source, out, "https://tracker.example/announce", true); err != nil {
		t.Fatalf("build torrent: %v", err)
	}
}
