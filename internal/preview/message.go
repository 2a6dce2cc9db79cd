// Package preview implements the live editing channel between an editor surface and an
// embedded preview: the message envelope, both endpoint state machines and a WebSocket relay.
package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the envelope version written by this package. Envelopes without "v" are read as version 1.
const Version = 1

// Message types.
const (
	TypeEditRequest   = "CMS_EDIT_REQUEST"
	TypePreviewUpdate = "CMS_PREVIEW_UPDATE"
)

var (
	// ErrMalformedMessage is returned for payloads that are not a JSON envelope.
	ErrMalformedMessage = errors.New("preview: malformed message")
	// ErrUnsupportedVersion is returned for envelope versions newer than Version.
	ErrUnsupportedVersion = errors.New("preview: unsupported envelope version")
	// ErrUnknownType is returned for message types this package does not handle. Receivers ignore it.
	ErrUnknownType = errors.New("preview: unknown message type")
)

// Envelope is the JSON frame exchanged between the two surfaces.
type Envelope struct {
	V     int     `json:"v,omitempty"`
	Type  string  `json:"type"`
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

// Message is either an EditRequest or a PreviewUpdate.
type Message interface {
	messageType() string
}

// EditRequest asks the editor to open a key. Sent by the preview.
type EditRequest struct {
	Key string
}

// PreviewUpdate carries an unsaved value for a key. Sent by the editor.
type PreviewUpdate struct {
	Key   string
	Value string
}

func (EditRequest) messageType() string   { return TypeEditRequest }
func (PreviewUpdate) messageType() string { return TypePreviewUpdate }

// Encode writes msg as a versioned envelope.
func Encode(msg Message) ([]byte, error) {
	env := Envelope{V: Version}
	switch m := msg.(type) {
	case EditRequest:
		env.Type, env.Key = TypeEditRequest, m.Key
	case PreviewUpdate:
		value := m.Value
		env.Type, env.Key, env.Value = TypePreviewUpdate, m.Key, &value
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return json.Marshal(env)
}

// Decode parses an envelope. Callers should drop messages that return ErrUnknownType
// or ErrUnsupportedVersion without reporting them.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.V == 0 {
		env.V = Version
	}
	if env.V > Version || env.V < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}
	key := strings.TrimSpace(env.Key)
	switch env.Type {
	case TypeEditRequest:
		if key == "" {
			return nil, fmt.Errorf("%w: missing key", ErrMalformedMessage)
		}
		return EditRequest{Key: key}, nil
	case TypePreviewUpdate:
		if key == "" || env.Value == nil {
			return nil, fmt.Errorf("%w: missing key or value", ErrMalformedMessage)
		}
		return PreviewUpdate{Key: key, Value: *env.Value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// SendFunc delivers an encoded message to the other surface. Implementations drop the
// message when no peer is connected; errors are ignored by the senders in this package.
type SendFunc func(payload []byte) error

func send(fn SendFunc, msg Message) {
	if fn == nil {
		return
	}
	payload, err := Encode(msg)
	if err != nil {
		return
	}
	_ = fn(payload)
}
