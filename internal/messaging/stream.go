package messaging

import (
	"iter"
	"sort"
	"strings"
	"time"
)

// Stream is the ordered message sequence of the open room. Entries are kept
// sorted by (CreatedAt, Key). Soft-deleted entries keep their slot but are
// not yielded by Visible or Entries.
type Stream struct {
	roomID  string
	entries []*Message
	byID    map[string]*Message
	byTemp  map[string]*Message

	loading   bool
	exhausted bool
	err       error

	// resyncing is set while the newest page after a feed resync is in
	// flight; resyncFrom is the newest confirmed entry at that point.
	resyncing  bool
	resyncFrom *Message
}

func newStream(roomID string) *Stream {
	return &Stream{
		roomID:  roomID,
		byID:    make(map[string]*Message),
		byTemp:  make(map[string]*Message),
		loading: true,
	}
}

// RoomID is the room the stream is bound to.
func (s *Stream) RoomID() string { return s.roomID }

// Loading reports whether a history fetch is in flight.
func (s *Stream) Loading() bool { return s.loading }

// Exhausted reports whether the oldest page of history has been loaded.
func (s *Stream) Exhausted() bool { return s.exhausted }

// Err is the last history fetch error, if any.
func (s *Stream) Err() error { return s.err }

func (s *Stream) insert(m *Message) {
	i := sort.Search(len(s.entries), func(i int) bool { return m.Before(s.entries[i]) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = m
	s.index(m)
}

func (s *Stream) index(m *Message) {
	if m.ID != "" {
		s.byID[m.ID] = m
	}
	if m.TempID != "" {
		s.byTemp[m.TempID] = m
	}
}

func (s *Stream) position(m *Message) int {
	i := sort.Search(len(s.entries), func(i int) bool { return !s.entries[i].Before(m) })
	if i < len(s.entries) && s.entries[i] == m {
		return i
	}
	for j, e := range s.entries {
		if e == m {
			return j
		}
	}
	return -1
}

func (s *Stream) remove(m *Message) bool {
	i := s.position(m)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	if m.ID != "" && s.byID[m.ID] == m {
		delete(s.byID, m.ID)
	}
	if m.TempID != "" && s.byTemp[m.TempID] == m {
		delete(s.byTemp, m.TempID)
	}
	return true
}

// reposition applies a change that may alter the entry's sort key.
func (s *Stream) reposition(m *Message, change func(*Message)) {
	s.remove(m)
	change(m)
	s.insert(m)
}

func (s *Stream) byServerID(id string) *Message {
	if id == "" {
		return nil
	}
	return s.byID[id]
}

func (s *Stream) byTempID(id string) *Message {
	if id == "" {
		return nil
	}
	return s.byTemp[id]
}

// matchUnconfirmed finds an own, not yet confirmed entry that looks like m:
// same sender, same content and attachment, created within window. It is
// the fallback for servers that do not echo the client id.
func (s *Stream) matchUnconfirmed(m *Message, window time.Duration) *Message {
	var best *Message
	var bestGap time.Duration
	for _, e := range s.entries {
		if e.ID != "" || e.SenderID != m.SenderID {
			continue
		}
		if strings.TrimSpace(e.Content) != strings.TrimSpace(m.Content) {
			continue
		}
		if !sameAttachment(e.Attachment, m.Attachment) {
			continue
		}
		gap := e.CreatedAt.Sub(m.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if best == nil || gap < bestGap {
			best, bestGap = e, gap
		}
	}
	return best
}

func sameAttachment(a, b Attachment) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if AttachmentKind(a) != AttachmentKind(b) {
		return false
	}
	au, _ := a.Descriptor()
	bu, _ := b.Descriptor()
	return au == bu
}

// dropConfirmedBefore removes confirmed entries ordered before m and reports
// how many were removed. Unconfirmed entries stay.
func (s *Stream) dropConfirmedBefore(m *Message) int {
	var drop []*Message
	for _, e := range s.entries {
		if !e.Before(m) {
			break
		}
		if e.State == Confirmed {
			drop = append(drop, e)
		}
	}
	for _, e := range drop {
		s.remove(e)
	}
	return len(drop)
}

func (s *Stream) oldestConfirmed() *Message {
	for _, e := range s.entries {
		if e.State == Confirmed {
			return e
		}
	}
	return nil
}

func (s *Stream) newestConfirmed() *Message {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].State == Confirmed {
			return s.entries[i]
		}
	}
	return nil
}

// Visible returns copies of all entries that are not soft-deleted.
func (s *Stream) Visible() []Message {
	out := make([]Message, 0, len(s.entries))
	for m := range s.Entries() {
		out = append(out, m)
	}
	return out
}

// Entries yields visible entries in stream order.
func (s *Stream) Entries() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for _, e := range s.entries {
			if e.Deleted {
				continue
			}
			if !yield(*e) {
				return
			}
		}
	}
}
