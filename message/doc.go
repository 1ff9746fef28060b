// Package message defines the message entity shared by the reconciliation
// engine and its transports.
//
// # Overview
//
// The package provides two primary pieces:
//
//   - Message: A single chat message with two-phase identity. A locally
//     created message starts life under a client-generated token and is
//     promoted exactly once to the server-assigned identifier when its echo
//     arrives.
//   - Status: The delivery state machine. Status only ever moves forward
//     (sending -> sent -> delivered -> read); StatusFailed is terminal and
//     reachable only from sending. Backward or repeated transitions are
//     silent no-ops, which is what makes event application idempotent.
//
// # Two-phase identity
//
// Consumers that need a stable key across the identity promotion should use
// DisplayKey, which returns the local token until the server id is known:
//
//	msg := message.NewLocal(convID, selfID, "hello", time.Now())
//	key := msg.DisplayKey() // local token for now
//	msg.Confirm("srv-81", serverTime)
//	key = msg.DisplayKey()  // still the local token, identity is stable
//	id := msg.ID()          // "srv-81"
//
// All mutation of a Message is serialized by the owning conversation
// reconciler; the type itself carries no lock.
package message
