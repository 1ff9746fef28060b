// Package transport defines the boundary between the reconciliation engine
// and the network.
//
// # Overview
//
// The package provides:
//
//   - Adapter: The abstract push-transport contract the engine consumes.
//     Outbound intents (send, typing, seen) are submitted through it and
//     inbound events (new message, typing, seen, connection state) are
//     delivered back through registered Handlers.
//   - SocketTransport: A websocket implementation of Adapter speaking the
//     backend's JSON event protocol, with automatic reconnection.
//   - HistoryFetcher and HTTPHistory: The request/response collaborator
//     that loads a conversation's backlog once per open.
//   - MockAdapter: An in-memory Adapter for tests.
//
// The engine never blocks on the network: Submit* methods enqueue and
// return, and inbound events are handed to the Handlers from the transport's
// own read loop.
package transport
