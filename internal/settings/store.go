package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Qaquka/aatm-qaquka/internal/docstore"
)

// ErrInvalid wraps every rejected settings update.
var ErrInvalid = errors.New("invalid settings")

// Store persists Settings as one JSON document, layering Defaults underneath
// on every read.
type Store struct {
	doc      *docstore.File
	defaults Settings
}

func NewStore(path string, defaults Settings) *Store {
	return &Store{doc: docstore.New(path), defaults: defaults}
}

// Init writes the defaults when no document exists yet.
func (s *Store) Init() error {
	var raw map[string]any
	return s.doc.Modify(&raw, func(exists bool) error {
		if exists && raw != nil {
			return nil
		}
		m, err := toMap(s.defaults)
		if err != nil {
			return err
		}
		raw = m
		return nil
	})
}

// Get reads the stored document and layers it over the defaults.
func (s *Store) Get() (Settings, error) {
	var stored map[string]any
	if _, err := s.doc.Load(&stored); err != nil {
		return Settings{}, err
	}
	layered, err := s.layer(stored)
	if err != nil {
		return Settings{}, err
	}
	return fromMap(layered)
}

// Update deep-merges patch into the current settings and persists the result.
func (s *Store) Update(patch map[string]any) (Settings, error) {
	var (
		stored map[string]any
		result Settings
	)
	err := s.doc.Modify(&stored, func(bool) error {
		current, err := s.layer(stored)
		if err != nil {
			return err
		}
		merged := Merge(current, patch)
		next, err := fromMap(merged)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := validate(next); err != nil {
			return err
		}
		m, err := toMap(next)
		if err != nil {
			return err
		}
		stored = m
		result = next
		return nil
	})
	if err != nil {
		return Settings{}, err
	}
	return result, nil
}

func (s *Store) layer(stored map[string]any) (map[string]any, error) {
	base, err := toMap(s.defaults)
	if err != nil {
		return nil, err
	}
	return Merge(base, stored), nil
}

func validate(s Settings) error {
	if len(s.BrowseRoots) == 0 {
		return fmt.Errorf("%w: browseRoots required", ErrInvalid)
	}
	for _, root := range s.BrowseRoots {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("%w: browseRoots must not contain empty entries", ErrInvalid)
		}
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		return fmt.Errorf("%w: outputDir required", ErrInvalid)
	}
	if s.Torrent.PieceSize < 0 {
		return fmt.Errorf("%w: torrent.pieceSize must not be negative", ErrInvalid)
	}
	return nil
}

// Source yields the current settings. Consumers read it on every operation so
// updates apply without a restart.
type Source interface {
	Get() (Settings, error)
}

var _ Source = (*Store)(nil)
