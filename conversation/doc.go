// Package conversation implements the reconciliation engine for a single
// conversation's message sequence.
//
// # Overview
//
// The package provides three components:
//
//   - Reconciler: The single authoritative owner of one conversation's
//     message sequence. Local sends, server echoes, remote messages, seen
//     and delivered notifications, and history pages all funnel through it;
//     nothing else mutates the sequence.
//   - Registry: Tracks pending local sends by correlation token until the
//     server echo resolves them or they time out and fail.
//   - Directory: Conversation-scoped participant lookup with a placeholder
//     fallback for unknown senders.
//
// # Reconciliation
//
// An inbound message event is resolved in three steps, first match wins:
//
//  1. Its correlation token matches a pending local send. The pending
//     message's identity is promoted to the server id. Reliable path.
//  2. No token, but the sender is the local user and exactly one
//     unconfirmed sending-state entry has identical content. Heuristic
//     fallback for servers that do not round-trip tokens.
//  3. Neither: a genuinely new remote message, deduplicated by server id.
//
// Applying the same event twice leaves the sequence unchanged, and a
// message's status only ever moves forward, so event duplication and
// reordering are harmless.
//
// All operations on a Reconciler serialize on one internal lock. Separate
// conversations share nothing and run fully in parallel.
package conversation
