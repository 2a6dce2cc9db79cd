package preview

import (
	"sync"

	"github.com/hanko-field/cms/internal/domain"
)

// PreviewSurface holds the rendered dictionary plus unsaved overrides from the editor.
// Overrides are visual only and disappear on the next Reset.
type PreviewSurface struct {
	mu        sync.RWMutex
	base      domain.EffectiveDictionary
	overrides map[string]string
	send      SendFunc
}

// NewPreviewSurface starts from a resolved dictionary. send delivers edit requests.
func NewPreviewSurface(dict domain.EffectiveDictionary, send SendFunc) *PreviewSurface {
	p := &PreviewSurface{send: send}
	p.Reset(dict)
	return p
}

// HandleMessage decodes a payload from the editor. Anything other than a preview update is ignored.
func (p *PreviewSurface) HandleMessage(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		return
	}
	if update, ok := msg.(PreviewUpdate); ok {
		p.Apply(update)
	}
}

// Apply overrides the rendered value for a key. Later updates replace earlier ones.
func (p *PreviewSurface) Apply(update PreviewUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[update.Key] = update.Value
}

// Reset replaces the base dictionary with a fresh resolution and discards overrides.
func (p *PreviewSurface) Reset(dict domain.EffectiveDictionary) {
	base := make(domain.EffectiveDictionary, len(dict))
	for key, value := range dict {
		base[key] = value
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = base
	p.overrides = make(map[string]string)
}

// Value returns what the preview currently renders for key.
func (p *PreviewSurface) Value(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if value, ok := p.overrides[key]; ok {
		return value, true
	}
	value, ok := p.base[key]
	return value, ok
}

// Snapshot returns the rendered dictionary with overrides applied.
func (p *PreviewSurface) Snapshot() domain.EffectiveDictionary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(domain.EffectiveDictionary, len(p.base)+len(p.overrides))
	for key, value := range p.base {
		out[key] = value
	}
	for key, value := range p.overrides {
		out[key] = value
	}
	return out
}

// RequestEdit asks the editor to open key, e.g. after a context click on a bound element.
func (p *PreviewSurface) RequestEdit(key string) {
	send(p.send, EditRequest{Key: key})
}
