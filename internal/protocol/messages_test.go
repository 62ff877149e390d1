package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClientMessageSendDirect(t *testing.T) {
	raw := []byte(`{"type":"send_direct","recipient_id":"u2","kind":"text","payload":"hi"}`)

	msgType, payload, err := ParseClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, TypeSendDirect, msgType)

	m, ok := payload.(SendDirectMsg)
	require.True(t, ok)
	require.Equal(t, "u2", m.RecipientID)
	require.Equal(t, "hi", m.Payload)
}

func TestParseClientMessageSelector(t *testing.T) {
	raw := []byte(`{"type":"fetch_history","conversation":{"kind":"room","target_id":"r1"}}`)

	msgType, payload, err := ParseClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, TypeFetchHistory, msgType)

	m := payload.(FetchHistoryMsg)
	require.Equal(t, SelectorRoom, m.Conversation.Kind)
	require.Equal(t, "r1", m.Conversation.TargetID)
}

func TestParseClientMessageMissingType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"payload":"hi"}`))
	require.Error(t, err)
}

func TestParseClientMessageUnknownType(t *testing.T) {
	msgType, _, err := ParseClientMessage([]byte(`{"type":"presence_snapshot"}`))
	require.Error(t, err)
	require.Equal(t, "presence_snapshot", msgType)
}

func TestParseClientMessageMalformed(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestNewServerMessageInjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeAuthFail, AuthFailMsg{Reason: "nope"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, TypeAuthFail, decoded["type"])
	require.Equal(t, "nope", decoded["reason"])
}
