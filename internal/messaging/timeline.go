package messaging

import (
	"sort"
	"sync"
	"time"

	"ordem/internal/core"
)

// Entry is one line of a client timeline.
type Entry struct {
	core.Message
	// Pending entries were appended locally and are not confirmed yet. They
	// have no ID and no Seq.
	Pending bool
	Failed  bool
}

// Timeline is the client view of one conversation. Confirmed messages are
// ordered by seq; pending ones follow in the order they were written.
//
// Confirmation matches on the client nonce, so two identical messages sent
// in a row stay two entries.
type Timeline struct {
	mu      sync.Mutex
	entries []Entry
	ids     map[string]bool
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]bool)}
}

// AddPending appends an optimistic entry for a message about to be sent.
func (t *Timeline) AddPending(senderID, body, nonce string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Message: core.Message{SenderID: senderID, Body: body, ClientNonce: nonce, CreatedAt: at},
		Pending: true,
	})
}

// Fail marks the pending entry for nonce as failed to send.
func (t *Timeline) Fail(nonce string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.pendingIndex(nonce); i >= 0 {
		t.entries[i].Failed = true
	}
}

// Apply merges one stored message, from a push or a send response. It
// reports whether the timeline changed.
func (t *Timeline) Apply(m core.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.applyLocked(m)
	if changed {
		t.sortLocked()
	}
	return changed
}

// Merge applies a batch of stored messages, typically a poll result.
func (t *Timeline) Merge(msgs []core.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	for _, m := range msgs {
		if t.applyLocked(m) {
			changed = true
		}
	}
	if changed {
		t.sortLocked()
	}
	return changed
}

func (t *Timeline) applyLocked(m core.Message) bool {
	if m.ID == "" || t.ids[m.ID] {
		return false
	}
	t.ids[m.ID] = true
	if i := t.pendingIndex(m.ClientNonce); i >= 0 {
		t.entries[i] = Entry{Message: m}
		return true
	}
	t.entries = append(t.entries, Entry{Message: m})
	return true
}

func (t *Timeline) pendingIndex(nonce string) int {
	if nonce == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.Pending && e.ClientNonce == nonce {
			return i
		}
	}
	return -1
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if a.Pending != b.Pending {
			return !a.Pending
		}
		if a.Pending {
			return false
		}
		return a.Seq < b.Seq
	})
}

// LastSeq is the highest confirmed seq, the cursor for the next poll.
func (t *Timeline) LastSeq() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var seq int64
	for _, e := range t.entries {
		if !e.Pending && e.Seq > seq {
			seq = e.Seq
		}
	}
	return seq
}

// Cursor is the end of the contiguous run of confirmed seqs that starts at
// the lowest one held. Polling after Cursor refetches whatever sits in a gap
// left by missed pushes, where polling after LastSeq would skip it.
func (t *Timeline) Cursor() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var cursor int64
	started := false
	for _, e := range t.entries {
		if e.Pending {
			break
		}
		switch {
		case !started:
			cursor, started = e.Seq, true
		case e.Seq == cursor+1:
			cursor = e.Seq
		case e.Seq > cursor+1:
			return cursor
		}
	}
	return cursor
}

// Gap reports whether confirmed seqs are missing below LastSeq.
func (t *Timeline) Gap() bool {
	return t.Cursor() < t.LastSeq()
}

// Entries returns a copy of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
