// Package control exposes the walkie-talkie commands of a node.
//
// Service runs start-speaking, stop-speaking, start-listening and
// stop-listening against one sender and one receiver. Handler serves those
// commands as JSON messages over a websocket at /control:
//
//	{"type": "start-speaking", "id": "1", "payload": {"recipients": [{"identity": "bob"}]}}
//	{"type": "reply", "id": "1", "payload": {"ok": true, "status": {...}}}
//
// Client is the matching client.
package control
