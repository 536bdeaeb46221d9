// Package broadcast fans state change notifications out to live viewer
// sessions.
//
// A Registry owns the set of registered sessions and is driven by a single
// goroutine fed through a command channel, so its map is never locked. Each
// websocket connection is wrapped in a Session that registers a non-blocking
// Sender, keeps the peer alive with a ping every HeartbeatInterval and closes
// once the peer has been silent for longer than ClientTimeout.
package broadcast
