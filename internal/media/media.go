package media

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Category is the advisory media classification used for output layout and
// push defaults.
type Category string

const (
	Films  Category = "Films"
	Series Category = "Series"
	Ebooks Category = "Ebooks"
	Jeux   Category = "Jeux"
)

// Categories lists every known category in display order.
var Categories = []Category{Films, Series, Ebooks, Jeux}

var (
	seriesPattern = regexp.MustCompile(`(?i)(s\d{2}e\d{2}|season|episode)`)
	ebookPattern  = regexp.MustCompile(`(?i)\.(epub|pdf|mobi|azw3)$`)
	gamePattern   = regexp.MustCompile(`(?i)\.(iso|exe|pkg|msi)$`)
)

// Classify guesses the category of a path from its name. Anything that does
// not match a known pattern is a film.
func Classify(name string) Category {
	switch {
	case seriesPattern.MatchString(name):
		return Series
	case ebookPattern.MatchString(name):
		return Ebooks
	case gamePattern.MatchString(name):
		return Jeux
	default:
		return Films
	}
}

// ParseCategory maps caller input onto a known category, case-insensitively.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(raw, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Resolve returns the explicit category when valid, the classified one otherwise.
func Resolve(explicit, path string) Category {
	if c, ok := ParseCategory(explicit); ok {
		return c
	}
	return Classify(path)
}

// Dir is the output subdirectory name for c.
func (c Category) Dir() string {
	if c == Series {
		return "Séries"
	}
	return string(c)
}

// OutputDir is base/<category dir>/<source base name without extension>.
func OutputDir(base string, c Category, source string) string {
	name := filepath.Base(source)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(base, c.Dir(), name)
}
