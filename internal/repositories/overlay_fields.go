package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var overlayTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseOverlayTime decodes a stored schedule bound. Nil and blank values mean unbounded.
// Strings are read as RFC 3339 or as UTC date/time without a zone.
func ParseOverlayTime(raw any) (*time.Time, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if value.IsZero() {
			return nil, nil
		}
		t := value.UTC()
		return &t, nil
	case *time.Time:
		if value == nil || value.IsZero() {
			return nil, nil
		}
		t := value.UTC()
		return &t, nil
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil, nil
		}
		for _, layout := range overlayTimeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				t = t.UTC()
				return &t, nil
			}
		}
		return nil, fmt.Errorf("unparsable schedule value %q", trimmed)
	default:
		return nil, fmt.Errorf("unsupported schedule type %T", raw)
	}
}

// DecodeTargetPages normalises stored target pages. Anything that is not a list of
// strings (or a JSON-encoded list of strings) yields nil, which makes the overlay ineligible.
func DecodeTargetPages(raw any) []string {
	switch value := raw.(type) {
	case []string:
		return cleanPages(value)
	case []any:
		pages := make([]string, 0, len(value))
		for _, item := range value {
			page, ok := item.(string)
			if !ok {
				return nil
			}
			pages = append(pages, page)
		}
		return cleanPages(pages)
	case []byte:
		return DecodeTargetPages(string(value))
	case string:
		var pages []string
		if err := json.Unmarshal([]byte(strings.TrimSpace(value)), &pages); err != nil {
			return nil
		}
		return cleanPages(pages)
	default:
		return nil
	}
}

func cleanPages(pages []string) []string {
	out := make([]string, 0, len(pages))
	for _, page := range pages {
		if trimmed := strings.TrimSpace(page); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
