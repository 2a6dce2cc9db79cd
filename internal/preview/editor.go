package preview

import (
	"sort"
	"strings"
	"sync"

	"github.com/hanko-field/cms/internal/domain"
)

// EditorSession is the state of one editing tab: the selected page and section, a one-shot
// highlight and the values used for dirty tracking.
type EditorSession struct {
	mu sync.Mutex

	sections  map[string]map[string]struct{}
	page      string
	section   string
	highlight string

	saved   map[string]string
	current map[string]string
	send    SendFunc
}

// NewEditorSession builds a session over a content tree. send delivers preview updates.
func NewEditorSession(tree domain.ContentTree, send SendFunc) *EditorSession {
	s := &EditorSession{
		saved:   make(map[string]string),
		current: make(map[string]string),
		send:    send,
	}
	s.SetTree(tree)
	return s
}

// SetTree replaces the known page and section buckets, e.g. after a key was first written.
func (s *EditorSession) SetTree(tree domain.ContentTree) {
	sections := make(map[string]map[string]struct{}, len(tree))
	for page, bySection := range tree {
		names := make(map[string]struct{}, len(bySection))
		for section := range bySection {
			names[section] = struct{}{}
		}
		sections[page] = names
	}
	s.mu.Lock()
	s.sections = sections
	s.mu.Unlock()
}

// HandleMessage decodes a payload from the preview. Anything other than an edit request is ignored.
func (s *EditorSession) HandleMessage(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		return
	}
	if req, ok := msg.(EditRequest); ok {
		s.HandleEditRequest(req)
	}
}

// HandleEditRequest selects the page bucket and section named by the key when they are known
// and marks the key for a one-shot highlight.
func (s *EditorSession) HandleEditRequest(req EditRequest) {
	segments := strings.Split(req.Key, ".")

	s.mu.Lock()
	defer s.mu.Unlock()
	if sections, ok := s.sections[segments[0]]; ok {
		s.page = segments[0]
		s.section = ""
		if len(segments) > 1 {
			if _, ok := sections[segments[1]]; ok {
				s.section = segments[1]
			}
		}
	}
	s.highlight = req.Key
}

// Selection returns the selected page and section. Either may be empty.
func (s *EditorSession) Selection() (page, section string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.section
}

// Select sets the page and section from editor navigation.
func (s *EditorSession) Select(page, section string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page, s.section = page, section
}

// ConsumeHighlight returns the pending highlight and clears it.
func (s *EditorSession) ConsumeHighlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.highlight
	s.highlight = ""
	return key, key != ""
}

// Load records fetched values as the saved baseline and drops unsaved edits for those keys.
func (s *EditorSession) Load(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		s.saved[key] = value
		s.current[key] = value
	}
}

// Edit changes the in-memory value and pushes it to the preview.
func (s *EditorSession) Edit(key, value string) {
	s.mu.Lock()
	s.current[key] = value
	sendFn := s.send
	s.mu.Unlock()

	send(sendFn, PreviewUpdate{Key: key, Value: value})
}

// MarkSaved records a durable write as the new baseline for key.
func (s *EditorSession) MarkSaved(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[key] = value
	s.current[key] = value
}

// Value returns the in-memory value for key.
func (s *EditorSession) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.current[key]
	return value, ok
}

// Dirty reports whether key differs from its last fetched or saved value.
func (s *EditorSession) Dirty(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyLocked(key)
}

// DirtyKeys lists every key with unsaved changes, sorted.
func (s *EditorSession) DirtyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.current {
		if s.dirtyLocked(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *EditorSession) dirtyLocked(key string) bool {
	current, ok := s.current[key]
	if !ok {
		return false
	}
	saved, ok := s.saved[key]
	return !ok || saved != current
}
