package conversation

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/messenger/transport"
)

// ApplyHistory merges a fetched history page into the live sequence. Each
// record flows through the same resolution as a live inbound event, so a
// record that is really the echo of an unconfirmed local send resolves that
// send instead of duplicating it, and a record already present live is
// ignored (the live entry wins, since it reflects more current status than
// the stored one). The merge is idempotent, so live events interleaving
// with a merge in progress cannot corrupt the sequence.
//
// After the merge the conversation is marked read on open: local-user
// entries advance to read and a seen marker is submitted to the transport.
func (r *Reconciler) ApplyHistory(records []transport.HistoryRecord) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	applied := 0
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		ev := transport.MessageEvent{
			ConversationID: r.conversationID,
			ServerID:       rec.ID,
			SenderID:       rec.SenderID,
			Content:        rec.Content,
			CreatedAt:      rec.CreatedAt,
		}
		if r.applyInboundLocked(ev) {
			applied++
			// The stored status may carry further than the bare insert
			// or confirmation; forward-only, so nothing can regress.
			if msg, ok := r.byServerID[rec.ID]; ok {
				msg.Advance(rec.Status)
			}
		}
	}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":        "ApplyHistory",
		"conversation_id": r.conversationID,
		"fetched":         len(records),
		"applied":         applied,
	}).Info("History page merged")

	r.ApplySeen()
	if err := r.adapter.SubmitSeen(r.conversationID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "ApplyHistory",
			"conversation_id": r.conversationID,
			"error":           err,
		}).Warn("Failed to submit seen marker after merge")
	}

	if applied > 0 {
		r.notifyChange()
	}
}
