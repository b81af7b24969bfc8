// ABOUTME: Tests for voice packets and control messages
// ABOUTME: Verifies header layout and control message JSON shape
package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	h := Header{Seq: 0x0102, Timestamp: 0x03040506, SSRC: 0x0708090a}
	packet := BuildPacket(h, []byte{0xaa, 0xbb})

	expected := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0xaa, 0xbb}
	assert.Equal(t, expected, packet)

	parsed, payload, err := ParseHeader(packet)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
	assert.Equal(t, []byte{0xaa, 0xbb}, payload)
}

func TestParseHeaderShortPacket(t *testing.T) {
	_, _, err := ParseHeader(make([]byte, HeaderSize-1))
	assert.True(t, errors.Is(err, ErrShortPacket))

	_, payload, err := ParseHeader(make([]byte, HeaderSize))
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestPacketSizes(t *testing.T) {
	tests := []struct {
		ratio   int
		packet  int
		payload int
	}{
		{1, 512, 502},
		{2, 256, 246},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.packet, PacketSize(tt.ratio))
		assert.Equal(t, tt.payload, PayloadSize(PacketSize(tt.ratio)))
	}
}

func TestStartSpeakingMessage(t *testing.T) {
	msg := Message{
		Type: TypeStartSpeaking,
		ID:   "42",
		Payload: StartSpeaking{
			Recipients: []Recipient{{Identity: "peer-a", Port: 4444}},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start-speaking","id":"42","payload":{"recipients":[{"identity":"peer-a","port":4444}]}}`, string(data))

	var raw struct {
		Type    string        `json:"type"`
		Payload StartSpeaking `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "peer-a", raw.Payload.Recipients[0].Identity)
}

func TestReplyOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(Reply{OK: true, Status: Status{Identity: "me", Listening: true}})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, true, decoded["status"].(map[string]interface{})["listening"])
}
