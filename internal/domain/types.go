package domain

import (
	"time"
)

// ContentType enumerates the value kinds a content entry can hold.
type ContentType string

const (
	// ContentTypeText is plain text rendered verbatim.
	ContentTypeText ContentType = "text"
	// ContentTypeImage stores an image URL.
	ContentTypeImage ContentType = "image"
	// ContentTypeHTML stores sanitised rich text.
	ContentTypeHTML ContentType = "html"
)

// Valid reports whether the content type is one of the known kinds.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeHTML:
		return true
	}
	return false
}

// ContentEntry is a single localized value stored under (Key, Language, Region).
// A nil Region marks the language-global value.
type ContentEntry struct {
	ID          string
	Key         string
	Language    string
	Region      *string
	ContentType ContentType
	Value       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsGlobal reports whether the entry applies to every region of its language.
func (e ContentEntry) IsGlobal() bool {
	return e.Region == nil
}

// SameTuple reports whether both entries share the uniqueness tuple.
func (e ContentEntry) SameTuple(other ContentEntry) bool {
	return e.Key == other.Key && e.Language == other.Language && SameRegion(e.Region, other.Region)
}

// SameRegion compares optional region codes, keeping nil distinct from any value.
func SameRegion(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EffectiveDictionary maps content keys to the value that won resolution.
type EffectiveDictionary map[string]string

// ContentTree indexes keys as page -> section -> leaves.
type ContentTree map[string]map[string][]ContentTreeLeaf

// ContentTreeLeaf summarises one key for editor navigation.
type ContentTreeLeaf struct {
	LeafKey             string   `json:"leafKey"`
	FullKey             string   `json:"fullKey"`
	AvailableLanguages  []string `json:"availableLanguages"`
	HasRegionalOverride bool     `json:"hasRegionalOverride"`
}

// DisplayStyle selects how an overlay is presented.
type DisplayStyle string

const (
	// DisplayStyleBanner renders a strip shown immediately.
	DisplayStyleBanner DisplayStyle = "banner"
	// DisplayStyleModal renders a dialog shown after a short delay.
	DisplayStyleModal DisplayStyle = "modal"
)

// OverlayWildcardPage targets every page.
const OverlayWildcardPage = "*"

// Overlay is a promotional banner or modal with schedule, targeting and cooldown.
type Overlay struct {
	ID             string
	IsActive       bool
	StartAt        *time.Time
	EndAt          *time.Time
	FrequencyHours int
	Language       string
	Region         *string
	DisplayStyle   DisplayStyle
	TargetPages    []string
	Title          string
	Body           string
	ImageURL       string
	CTAText        string
	CTAURL         string
	CreatedAt      time.Time
	// InvalidSchedule is set when a stored start/end value could not be parsed.
	InvalidSchedule bool
}

// Cooldown returns how long a dismissal suppresses the overlay. Zero means never remembered.
func (o Overlay) Cooldown() time.Duration {
	if o.FrequencyHours <= 0 {
		return 0
	}
	return time.Duration(o.FrequencyHours) * time.Hour
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// ContentChangeAction names what happened to an entry.
type ContentChangeAction string

const (
	ContentCreated ContentChangeAction = "created"
	ContentUpdated ContentChangeAction = "updated"
)

// ContentChangedEvent notifies renderers and editors that a dictionary needs re-resolving.
type ContentChangedEvent struct {
	Key         string              `json:"key"`
	Language    string              `json:"language"`
	Region      *string             `json:"region"`
	ContentType ContentType         `json:"contentType"`
	Action      ContentChangeAction `json:"action"`
	OccurredAt  time.Time           `json:"occurredAt"`
}
