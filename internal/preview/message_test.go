package preview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	payload, err := Encode(PreviewUpdate{Key: "home.hero.title", Value: ""})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1,"type":"CMS_PREVIEW_UPDATE","key":"home.hero.title","value":""}`, string(payload))

	msg, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, PreviewUpdate{Key: "home.hero.title", Value: ""}, msg)
}

func TestDecodeAcceptsUnversionedEnvelope(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"CMS_EDIT_REQUEST","key":"home.hero.title"}`))
	require.NoError(t, err)
	require.Equal(t, EditRequest{Key: "home.hero.title"}, msg)
}

func TestDecodeRejections(t *testing.T) {
	cases := map[string]error{
		`not json`: ErrMalformedMessage,
		`{"v":2,"type":"CMS_EDIT_REQUEST","key":"a"}`:  ErrUnsupportedVersion,
		`{"type":"CMS_SOMETHING_NEW","key":"a"}`:       ErrUnknownType,
		`{"type":"CMS_EDIT_REQUEST","key":" "}`:        ErrMalformedMessage,
		`{"type":"CMS_PREVIEW_UPDATE","key":"a"}`:      ErrMalformedMessage,
	}
	for payload, want := range cases {
		_, err := Decode([]byte(payload))
		require.Truef(t, errors.Is(err, want), "payload %s: got %v want %v", payload, err, want)
	}
}
