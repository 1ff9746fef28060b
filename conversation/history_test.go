package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/messenger/message"
	"github.com/opd-ai/messenger/transport"
)

func historyRecord(id, senderID, content string, createdAt time.Time, status message.Status) transport.HistoryRecord {
	return transport.HistoryRecord{
		ID:        id,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: createdAt,
		Status:    status,
	}
}

func TestApplyHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("merges a page in timestamp order", func(t *testing.T) {
		r, _, _ := newTestReconciler()

		// Page arrives unordered; display order is createdAt ascending.
		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("h10", "user-b", "ten", base.Add(10*time.Second), message.StatusSent),
			historyRecord("h5", "user-b", "five", base.Add(5*time.Second), message.StatusSent),
			historyRecord("h20", "user-b", "twenty", base.Add(20*time.Second), message.StatusSent),
		})

		seq := r.Snapshot()
		require.Len(t, seq, 3)
		assert.Equal(t, "five", seq[0].Content)
		assert.Equal(t, "ten", seq[1].Content)
		assert.Equal(t, "twenty", seq[2].Content)
	})

	t.Run("live entry wins over the historical record", func(t *testing.T) {
		r, adapter, clock := newTestReconciler()

		// A live echo advanced s1 to delivered before the (stale) history
		// page reporting it merely sent came back.
		_, err := r.Send("hi")
		require.NoError(t, err)
		require.NoError(t, r.ApplyInbound(echoFor(adapter.Sends()[0], "s1", clock.Now())))
		r.ApplyDelivered("s1")

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("s1", "me", "hi", clock.Now(), message.StatusSent),
		})

		seq := r.Snapshot()
		require.Len(t, seq, 1, "merge must not duplicate the live entry")
		// ApplyHistory marks the conversation seen on open, which advances
		// the local delivered entry to read; it must never regress to sent.
		assert.Equal(t, message.StatusRead, seq[0].Status)
	})

	t.Run("record resolves an unconfirmed local send", func(t *testing.T) {
		r, adapter, clock := newTestReconciler()

		_, err := r.Send("hi")
		require.NoError(t, err)

		// The page already contains the echo of the send; history records
		// carry no token, so the heuristic path must resolve it.
		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("s1", "me", "hi", clock.Now(), message.StatusSent),
		})

		seq := r.Snapshot()
		require.Len(t, seq, 1, "the record must resolve the pending send, not duplicate it")
		assert.Equal(t, "s1", seq[0].ID())
		assert.Zero(t, r.PendingCount(), "resolution must release the token")
		assert.Equal(t, message.StatusRead, seq[0].Status, "mark-read-on-open applies to the confirmed entry")

		// The real tokened echo arriving afterwards is a duplicate, and the
		// expiry sweep has nothing left to fail.
		require.NoError(t, r.ApplyInbound(echoFor(adapter.Sends()[0], "s1", clock.Now())))
		clock.Advance(time.Minute)
		r.ExpirePending(clock.Now())

		seq = r.Snapshot()
		require.Len(t, seq, 1)
		assert.Equal(t, message.StatusRead, seq[0].Status)
	})

	t.Run("tokened echo supersedes a record inserted while ambiguous", func(t *testing.T) {
		r, adapter, clock := newTestReconciler()

		// Two identical pending sends: the untokened record cannot pick one
		// and lands as its own entry.
		_, err := r.Send("hi")
		require.NoError(t, err)
		_, err = r.Send("hi")
		require.NoError(t, err)

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("s1", "me", "hi", clock.Now(), message.StatusSent),
		})
		require.Len(t, r.Snapshot(), 3)
		require.Equal(t, 2, r.PendingCount())

		// The tokened echo identifies which send s1 really was; the
		// standalone entry collapses into the confirmed one.
		require.NoError(t, r.ApplyInbound(echoFor(adapter.Sends()[0], "s1", clock.Now())))

		seq := r.Snapshot()
		require.Len(t, seq, 2)
		assert.Equal(t, 1, r.PendingCount())

		var confirmed, pending int
		for _, m := range seq {
			if m.ID() == "s1" {
				confirmed++
			}
			if m.Status == message.StatusSending {
				pending++
			}
		}
		assert.Equal(t, 1, confirmed, "exactly one entry carries the server id")
		assert.Equal(t, 1, pending, "the other send keeps waiting for its own echo")
	})

	t.Run("merge leaves unconfirmed local sends alone", func(t *testing.T) {
		r, _, _ := newTestReconciler()

		_, err := r.Send("pending")
		require.NoError(t, err)

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("h1", "user-b", "old", base, message.StatusRead),
		})

		seq := r.Snapshot()
		require.Len(t, seq, 2)
		assert.Equal(t, "old", seq[0].Content)
		assert.Equal(t, message.StatusSending, seq[1].Status)
		assert.Equal(t, 1, r.PendingCount())
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		r, _, _ := newTestReconciler()

		page := []transport.HistoryRecord{
			historyRecord("h1", "user-b", "a", base, message.StatusSent),
			historyRecord("h2", "user-b", "b", base.Add(time.Second), message.StatusSent),
		}
		r.ApplyHistory(page)
		r.ApplyHistory(page)

		assert.Len(t, r.Snapshot(), 2)
	})

	t.Run("live event interleaved with merge does not duplicate", func(t *testing.T) {
		r, _, _ := newTestReconciler()

		// The same message arrives live before the history page containing
		// it is merged.
		require.NoError(t, r.ApplyInbound(remoteMessage("h1", "race", base)))

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("h1", "user-b", "race", base, message.StatusSent),
			historyRecord("h2", "user-b", "older", base.Add(-time.Minute), message.StatusRead),
		})

		seq := r.Snapshot()
		require.Len(t, seq, 2)
		assert.Equal(t, "older", seq[0].Content)
		assert.Equal(t, "race", seq[1].Content)
	})

	t.Run("marks the conversation seen after merge", func(t *testing.T) {
		r, adapter, _ := newTestReconciler()

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("h1", "user-b", "hello", base, message.StatusSent),
		})

		assert.Equal(t, []string{"conv-1"}, adapter.SeenMarks())
	})

	t.Run("merge after close is a no-op", func(t *testing.T) {
		r, adapter, _ := newTestReconciler()
		r.Close()

		r.ApplyHistory([]transport.HistoryRecord{
			historyRecord("h1", "user-b", "late", base, message.StatusSent),
		})

		assert.Empty(t, r.Snapshot())
		assert.Empty(t, adapter.SeenMarks())
	})
}
