// Package naming normalizes texture suffix casing so create_pbr.exe can
// recognize diffuse, normal and glow maps.
package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultExtension = ".dds"

var DefaultSuffixes = []string{"diffuse", "diff", "d", "normal", "norm", "n", "glow", "g"}

type Sanitizer struct {
	ext      string
	suffixes map[string]bool
	pattern  *regexp.Regexp
}

func NewSanitizer(suffixes []string, ext string) *Sanitizer {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	known := make(map[string]bool, len(suffixes))
	for _, s := range suffixes {
		known[strings.ToLower(s)] = true
	}
	return &Sanitizer{
		ext:      ext,
		suffixes: known,
		pattern:  regexp.MustCompile(`(?i)_([^_.]+)(` + regexp.QuoteMeta(ext) + `)$`),
	}
}

func Default() *Sanitizer {
	return NewSanitizer(DefaultSuffixes, DefaultExtension)
}

func (s *Sanitizer) Extension() string {
	return s.ext
}

// Sanitize returns name with a recognized, miscased suffix lowercased.
// Everything else in name, the extension included, is left as written.
func (s *Sanitizer) Sanitize(name string) string {
	loc := s.pattern.FindStringSubmatchIndex(name)
	if loc == nil {
		return name
	}
	start, end := loc[2], loc[3]
	suffix := name[start:end]

	// A Caser keeps state and must not be shared between goroutines.
	lower := cases.Lower(language.Und).String(suffix)
	if !s.suffixes[lower] || !hasUpper(suffix) {
		return name
	}
	return name[:start] + lower + name[end:]
}

// HasAssetExtension reports whether name ends in the asset extension,
// ignoring case.
func (s *Sanitizer) HasAssetExtension(name string) bool {
	return len(name) >= len(s.ext) && strings.EqualFold(name[len(name)-len(s.ext):], s.ext)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
