// Package locale normalises language and region codes and recognises locale path prefixes.
package locale

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// Set is the configured list of supported locales. The first entry is the fallback language.
type Set struct {
	codes   []string
	known   map[string]struct{}
	matcher language.Matcher
}

// ErrNoLocales is returned when a Set is built without any usable code.
var ErrNoLocales = errors.New("locale: at least one supported locale is required")

// NewSet builds a Set from raw codes such as "en", "fr", "es". Duplicates and blanks are dropped.
func NewSet(codes []string) (*Set, error) {
	set := &Set{known: make(map[string]struct{}, len(codes))}
	tags := make([]language.Tag, 0, len(codes))
	for _, raw := range codes {
		code := NormalizeLanguage(raw)
		if code == "" {
			continue
		}
		if _, ok := set.known[code]; ok {
			continue
		}
		set.known[code] = struct{}{}
		set.codes = append(set.codes, code)
		tags = append(tags, language.Make(code))
	}
	if len(set.codes) == 0 {
		return nil, ErrNoLocales
	}
	set.matcher = language.NewMatcher(tags)
	return set, nil
}

// Fallback returns the default language used when a localized value is missing.
func (s *Set) Fallback() string {
	if s == nil || len(s.codes) == 0 {
		return ""
	}
	return s.codes[0]
}

// Codes returns the supported language codes in configured order.
func (s *Set) Codes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.codes))
	copy(out, s.codes)
	return out
}

// Supports reports whether the raw code normalises to a supported language.
func (s *Set) Supports(raw string) bool {
	if s == nil {
		return false
	}
	_, ok := s.known[NormalizeLanguage(raw)]
	return ok
}

// Match picks the best supported language for an Accept-Language header value.
func (s *Set) Match(acceptLanguage string) string {
	if s == nil || len(s.codes) == 0 {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return s.Fallback()
	}
	_, index, confidence := s.matcher.Match(tags...)
	if confidence == language.No || index < 0 || index >= len(s.codes) {
		return s.Fallback()
	}
	return s.codes[index]
}

// StripPrefix removes a leading path segment when it is a supported locale code.
// "/fr/donate" becomes "/donate" and "/fr" becomes "/". Other paths are returned cleaned.
func (s *Set) StripPrefix(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	rest := strings.TrimPrefix(path, "/")
	segment, remainder, hasMore := strings.Cut(rest, "/")
	if segment == "" || s == nil {
		return path
	}
	if _, ok := s.known[strings.ToLower(segment)]; !ok {
		return path
	}
	if !hasMore || remainder == "" {
		return "/"
	}
	return "/" + remainder
}

// NormalizeLanguage reduces a language tag to its lower-case base language ("fr-HT" -> "fr").
// Unparseable values are trimmed and lower-cased so they still compare consistently.
func NormalizeLanguage(raw string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if trimmed == "" {
		return ""
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return strings.ToLower(trimmed)
	}
	return base.String()
}

// NormalizeRegion upper-cases a region code, returning nil for blank input.
func NormalizeRegion(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	normalized := strings.ToUpper(trimmed)
	if region, err := language.ParseRegion(trimmed); err == nil {
		normalized = region.String()
	}
	return &normalized
}

// ValidRegion reports whether a normalised region is a 2-3 character ASCII letter or digit
// code (ISO 3166 alpha-2 or UN M.49).
func ValidRegion(region string) bool {
	if len(region) < 2 || len(region) > 3 {
		return false
	}
	for i := 0; i < len(region); i++ {
		c := region[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// RegionPtr converts a possibly blank string to an optional normalised region.
func RegionPtr(raw string) *string {
	return NormalizeRegion(&raw)
}
