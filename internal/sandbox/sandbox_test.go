package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	root := t.TempDir()
	root, _ = filepath.EvalSymlinks(root)
	media := filepath.Join(root, "media")
	if err := os.MkdirAll(filepath.Join(media, "Films"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	outside := filepath.Join(root, "private")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "root itself", input: media, want: media},
		{name: "descendant", input: filepath.Join(media, "Films"), want: filepath.Join(media, "Films")},
		{name: "missing leaf", input: filepath.Join(media, "Films", "new.mkv"), want: filepath.Join(media, "Films", "new.mkv")},
		{name: "dot dot escape", input: filepath.Join(media, "..", "private"), wantErr: true},
		{name: "sibling prefix", input: media + "-other", wantErr: true},
		{name: "traversal back inside", input: filepath.Join(media, "Films", "..", "Films"), want: filepath.Join(media, "Films")},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input, []string{media})
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfBounds) {
					t.Fatalf("expected ErrOutOfBounds, got %v (%q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("Validate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	media := filepath.Join(root, "media")
	secret := filepath.Join(root, "secret")
	for _, dir := range []string{media, secret} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	link := filepath.Join(media, "escape")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := Validate(filepath.Join(link, "passwd"), []string{media}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestValidateNoRoots(t *testing.T) {
	if _, err := Validate("/tmp", nil); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds with no roots, got %v", err)
	}
}

func TestContains(t *testing.T) {
	if !Contains("/nas/media", "/nas/media/a/b") {
		t.Fatal("expected descendant to be contained")
	}
	if Contains("/nas/media", "/nas/mediafoo") {
		t.Fatal("prefix sibling must not be contained")
	}
	if Contains("/nas/media", "/nas") {
		t.Fatal("parent must not be contained")
	}
}
