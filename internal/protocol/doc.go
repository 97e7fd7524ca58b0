// Package protocol defines the JSON frame format exchanged over the realtime
// channel.
//
// Every frame is an object with a "type" tag and a "data" payload:
//
//	{"type": "ping", "data": {"timestamp": 1705328200000}}
//	{"type": "connection_established", "data": {"connection_id": "abc"}}
//	{"type": "notification", "data": {"id": 1, "title": "...", ...}}
//
// Outbound frames are limited to heartbeat pings; everything else is inbound.
package protocol
