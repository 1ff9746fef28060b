package typing

import (
	"testing"
	"time"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

func newTestAggregator() (*Aggregator, *mockTimeProvider) {
	clock := &mockTimeProvider{currentTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewAggregator("me", DefaultTTL, clock), clock
}

func TestSetTyping(t *testing.T) {
	t.Run("peer appears while typing", func(t *testing.T) {
		agg, _ := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)

		typers := agg.CurrentTypers("conv-1")
		if len(typers) != 1 || typers[0] != "user-a" {
			t.Errorf("CurrentTypers = %v, want [user-a]", typers)
		}
	})

	t.Run("explicit stop removes immediately", func(t *testing.T) {
		agg, _ := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)
		agg.SetTyping("conv-1", "user-a", false)

		if typers := agg.CurrentTypers("conv-1"); len(typers) != 0 {
			t.Errorf("CurrentTypers = %v, want empty", typers)
		}
	})

	t.Run("local user never reported", func(t *testing.T) {
		agg, _ := newTestAggregator()
		agg.SetTyping("conv-1", "me", true)
		agg.SetTyping("conv-1", "user-a", true)

		typers := agg.CurrentTypers("conv-1")
		if len(typers) != 1 || typers[0] != "user-a" {
			t.Errorf("CurrentTypers = %v, want [user-a]", typers)
		}
	})

	t.Run("conversations are independent", func(t *testing.T) {
		agg, _ := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)
		agg.SetTyping("conv-2", "user-b", true)

		if typers := agg.CurrentTypers("conv-1"); len(typers) != 1 || typers[0] != "user-a" {
			t.Errorf("conv-1 typers = %v, want [user-a]", typers)
		}
		if typers := agg.CurrentTypers("conv-2"); len(typers) != 1 || typers[0] != "user-b" {
			t.Errorf("conv-2 typers = %v, want [user-b]", typers)
		}
	})

	t.Run("stop for unknown entry is a no-op", func(t *testing.T) {
		agg, _ := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", false) // never typed
		if typers := agg.CurrentTypers("conv-1"); len(typers) != 0 {
			t.Errorf("CurrentTypers = %v, want empty", typers)
		}
	})
}

func TestExpiry(t *testing.T) {
	t.Run("entry expires after TTL without refresh", func(t *testing.T) {
		agg, clock := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)

		clock.Advance(DefaultTTL + time.Millisecond)
		agg.ExpireStale(clock.Now())

		if typers := agg.CurrentTypers("conv-1"); len(typers) != 0 {
			t.Errorf("CurrentTypers = %v, want empty after expiry", typers)
		}
	})

	t.Run("refresh extends the entry", func(t *testing.T) {
		agg, clock := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)

		clock.Advance(DefaultTTL - time.Second)
		agg.SetTyping("conv-1", "user-a", true) // refresh

		clock.Advance(DefaultTTL - time.Second)
		typers := agg.CurrentTypers("conv-1")
		if len(typers) != 1 {
			t.Errorf("refreshed entry expired early, typers = %v", typers)
		}
	})

	t.Run("lazy expiry on read", func(t *testing.T) {
		agg, clock := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)

		clock.Advance(DefaultTTL + time.Millisecond)
		// No ExpireStale call; CurrentTypers must still hide stale entries.
		if typers := agg.CurrentTypers("conv-1"); len(typers) != 0 {
			t.Errorf("CurrentTypers = %v, want empty", typers)
		}
	})

	t.Run("only stale entries removed", func(t *testing.T) {
		agg, clock := newTestAggregator()
		agg.SetTyping("conv-1", "user-a", true)
		clock.Advance(DefaultTTL / 2)
		agg.SetTyping("conv-1", "user-b", true)

		clock.Advance(DefaultTTL/2 + time.Millisecond)
		agg.ExpireStale(clock.Now())

		typers := agg.CurrentTypers("conv-1")
		if len(typers) != 1 || typers[0] != "user-b" {
			t.Errorf("CurrentTypers = %v, want [user-b]", typers)
		}
	})
}

func TestCloseConversation(t *testing.T) {
	agg, _ := newTestAggregator()
	agg.SetTyping("conv-1", "user-a", true)
	agg.SetTyping("conv-2", "user-b", true)

	agg.CloseConversation("conv-1")

	if typers := agg.CurrentTypers("conv-1"); len(typers) != 0 {
		t.Errorf("closed conversation still has typers: %v", typers)
	}
	if typers := agg.CurrentTypers("conv-2"); len(typers) != 1 {
		t.Errorf("other conversation lost its typers: %v", typers)
	}
}

func TestCurrentTypersSorted(t *testing.T) {
	agg, _ := newTestAggregator()
	agg.SetTyping("conv-1", "zoe", true)
	agg.SetTyping("conv-1", "amy", true)
	agg.SetTyping("conv-1", "bob", true)

	typers := agg.CurrentTypers("conv-1")
	want := []string{"amy", "bob", "zoe"}
	if len(typers) != len(want) {
		t.Fatalf("CurrentTypers = %v, want %v", typers, want)
	}
	for i := range want {
		if typers[i] != want[i] {
			t.Errorf("CurrentTypers[%d] = %q, want %q", i, typers[i], want[i])
		}
	}
}

func TestFormatTypers(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"nobody", nil, ""},
		{"one", []string{"Alice"}, "Alice is typing…"},
		{"two", []string{"Alice", "Bob"}, "Alice and Bob are typing…"},
		{"many", []string{"Alice", "Bob", "Carol"}, "Alice and 2 others are typing…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTypers(tt.names); got != tt.want {
				t.Errorf("FormatTypers(%v) = %q, want %q", tt.names, got, tt.want)
			}
		})
	}
}
