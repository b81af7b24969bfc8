// ABOUTME: Voice packet header codec
// ABOUTME: Big-endian sequence, timestamp and SSRC in front of every audio payload
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the voice packet header (seq + timestamp + ssrc)
	HeaderSize = 2 + 4 + 4 // 10 bytes

	// MaxPacketSize bounds the size of any voice packet, header included
	MaxPacketSize = 512

	// MinPacketSize is the smallest packet carrying one 16-bit sample
	MinPacketSize = HeaderSize + 2
)

// ErrShortPacket is returned when a packet cannot hold a header
var ErrShortPacket = errors.New("packet shorter than header")

// Header precedes the payload of every voice packet
type Header struct {
	Seq       uint16 // packet counter, wraps
	Timestamp uint32 // sample index of the first payload sample, wraps
	SSRC      uint32 // random per sender session
}

// Put writes the header into the first HeaderSize bytes of buf
func (h Header) Put(buf []byte) {
	_ = buf[HeaderSize-1]
	binary.BigEndian.PutUint16(buf[0:2], h.Seq)
	binary.BigEndian.PutUint32(buf[2:6], h.Timestamp)
	binary.BigEndian.PutUint32(buf[6:10], h.SSRC)
}

// ParseHeader reads the header of a packet and returns it with the payload
func ParseHeader(packet []byte) (Header, []byte, error) {
	if len(packet) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(packet))
	}
	h := Header{
		Seq:       binary.BigEndian.Uint16(packet[0:2]),
		Timestamp: binary.BigEndian.Uint32(packet[2:6]),
		SSRC:      binary.BigEndian.Uint32(packet[6:10]),
	}
	return h, packet[HeaderSize:], nil
}

// BuildPacket prepends the header to payload in a new slice
func BuildPacket(h Header, payload []byte) []byte {
	packet := make([]byte, HeaderSize+len(payload))
	h.Put(packet)
	copy(packet[HeaderSize:], payload)
	return packet
}

// PacketSize returns the packet size for a compression ratio: MaxPacketSize/ratio
func PacketSize(ratio int) int {
	if ratio <= 0 {
		ratio = 1
	}
	return MaxPacketSize / ratio
}

// PayloadSize returns the payload bytes carried by a packet of packetSize
func PayloadSize(packetSize int) int {
	return packetSize - HeaderSize
}
