package stream

import (
	"sort"
	"sync"

	"github.com/dinehub/realtime/internal/model"
)

type dedupKey struct {
	roomKey string
	id      string
}

// Merger combines loaded history with live-pushed messages into one
// ordered, de-duplicated display sequence.
//
// History is inserted by its ordering key (roomKey aside, timestamp then
// ID), so the final order is the same no matter which page arrived first.
// Live messages are appended in arrival order. A message whose
// (roomKey, id) is already present is dropped, which makes re-applying the
// same inputs a no-op.
type Merger struct {
	mu   sync.Mutex
	seq  []model.Message
	seen map[dedupKey]struct{}
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{seen: make(map[dedupKey]struct{})}
}

// PrependHistory merges one loaded history page into the sequence. Pages
// arrive newest-page-first with messages oldest-first within the page; each
// message is placed at its sorted position, so loading order does not
// matter. Ephemeral entries never come from history and are skipped if a
// server ever echoes one. Returns the number of messages added.
func (m *Merger) PrependHistory(page []model.Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	// Walk newest-first so the common case is repeated inserts at the
	// front of the sequence.
	for i := len(page) - 1; i >= 0; i-- {
		msg := page[i]
		if msg.Ephemeral {
			continue
		}
		if m.duplicate(msg) {
			continue
		}

		pos := sort.Search(len(m.seq), func(j int) bool {
			return msg.Before(m.seq[j])
		})
		m.seq = append(m.seq, model.Message{})
		copy(m.seq[pos+1:], m.seq[pos:])
		m.seq[pos] = msg

		m.seen[dedupKey{msg.RoomKey, msg.ID}] = struct{}{}
		added++
	}
	return added
}

// AppendLive adds a live-pushed message to the back of the sequence, in
// arrival order. An ephemeral placeholder from the same sender on the same
// room is replaced in place rather than duplicated. Duplicates by
// (roomKey, id) are dropped, not overwritten.
func (m *Merger) AppendLive(msg model.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.duplicate(msg) {
		return false
	}

	// A real message supersedes a pending placeholder from its sender.
	if !msg.Ephemeral {
		if pos := m.findEphemeral(msg.RoomKey, msg.SenderType); pos >= 0 {
			old := m.seq[pos]
			delete(m.seen, dedupKey{old.RoomKey, old.ID})
			m.seq[pos] = msg
			m.seen[dedupKey{msg.RoomKey, msg.ID}] = struct{}{}
			return true
		}
	} else if pos := m.findEphemeral(msg.RoomKey, msg.SenderType); pos >= 0 {
		// At most one placeholder per sender per room.
		old := m.seq[pos]
		delete(m.seen, dedupKey{old.RoomKey, old.ID})
		m.seq[pos] = msg
		m.seen[dedupKey{msg.RoomKey, msg.ID}] = struct{}{}
		return true
	}

	m.seq = append(m.seq, msg)
	m.seen[dedupKey{msg.RoomKey, msg.ID}] = struct{}{}
	return true
}

// Snapshot returns a copy of the current display sequence.
func (m *Merger) Snapshot() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Message, len(m.seq))
	copy(out, m.seq)
	return out
}

// Len returns the number of entries, placeholders included.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seq)
}

func (m *Merger) duplicate(msg model.Message) bool {
	_, ok := m.seen[dedupKey{msg.RoomKey, msg.ID}]
	return ok
}

func (m *Merger) findEphemeral(roomKey string, sender model.SenderType) int {
	// Scan from the back; placeholders live near the end.
	for i := len(m.seq) - 1; i >= 0; i-- {
		if m.seq[i].Ephemeral && m.seq[i].RoomKey == roomKey && m.seq[i].SenderType == sender {
			return i
		}
	}
	return -1
}
