package messaging

import "time"

// Receipt is the delivery indicator shown on an own message.
type Receipt int

const (
	// ReceiptNone: not an own confirmed message in a private room.
	ReceiptNone Receipt = iota
	ReceiptSent
	ReceiptSeen
)

func (r Receipt) String() string {
	switch r {
	case ReceiptSent:
		return "sent"
	case ReceiptSeen:
		return "seen"
	default:
		return ""
	}
}

// readMark is one watermark write handed to the data API.
type readMark struct {
	roomID string
	at     time.Time
	prev   time.Time
}

// ReadTracker keeps the viewing user's read watermark per room and derives
// delivery indicators from the other participant's watermark.
type ReadTracker struct {
	self string
	dir  *Directory
	// requested is the highest watermark persisted or in flight per room.
	requested map[string]time.Time
}

func newReadTracker(self string, dir *Directory) *ReadTracker {
	return &ReadTracker{self: self, dir: dir, requested: make(map[string]time.Time)}
}

// markRead clears the room's unread count and advances the local watermark
// to the newest known message. It returns a mark to persist only when the
// watermark moved past what was already requested.
func (t *ReadTracker) markRead(roomID string) (readMark, bool) {
	r := t.dir.get(roomID)
	if r == nil {
		return readMark{}, false
	}
	r.UnreadCount = 0
	if r.LastMessage == nil {
		return readMark{}, false
	}
	at := r.LastMessage.CreatedAt

	me := r.Member(t.self)
	prev, seeded := t.requested[roomID]
	if !seeded && me != nil {
		prev = me.LastReadAt
	}
	if me != nil && at.After(me.LastReadAt) {
		me.LastReadAt = at
	}
	if !at.After(prev) {
		t.requested[roomID] = prev
		return readMark{}, false
	}
	t.requested[roomID] = at
	return readMark{roomID: roomID, at: at, prev: prev}, true
}

// rollback forgets a failed write so the next markRead retries it.
func (t *ReadTracker) rollback(m readMark) {
	if cur, ok := t.requested[m.roomID]; ok && cur.Equal(m.at) {
		t.requested[m.roomID] = m.prev
	}
}

// observe records a watermark for the viewing user that the server already
// holds, e.g. one written from another device.
func (t *ReadTracker) observe(roomID string, at time.Time) {
	if at.After(t.requested[roomID]) {
		t.requested[roomID] = at
	}
}

// receipt computes the indicator for m in room r.
func (t *ReadTracker) receipt(r *Room, m *Message) Receipt {
	if r == nil || r.Kind != RoomPrivate || m.SenderID != t.self || m.State != Confirmed {
		return ReceiptNone
	}
	p, ok := r.Partner(t.self)
	if !ok {
		return ReceiptSent
	}
	if !p.LastReadAt.Before(m.CreatedAt) {
		return ReceiptSeen
	}
	return ReceiptSent
}
