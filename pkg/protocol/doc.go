// ABOUTME: Protocol package for voice packets and control messages
// ABOUTME: Provides the packet header codec and control JSON message types
// Package protocol implements the meshtalk wire formats.
//
// Voice packets are sent over the mesh transport:
//
//	+--------+------------+------------+------------------+
//	| seq 16 | timestamp 32 | ssrc 32  | payload ...      |
//	+--------+------------+------------+------------------+
//
// All header fields are big-endian. The timestamp counts samples since the
// start of the sender session and the SSRC identifies that session.
//
// Control messages are JSON objects exchanged over the control websocket:
//
//	{"type": "start-speaking", "id": "...", "payload": {"recipients": [...]}}
//	{"type": "reply", "id": "...", "payload": {"ok": true, "status": {...}}}
package protocol
