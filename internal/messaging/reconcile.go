package messaging

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// effects are the side effects the engine asks its owner to perform. Network
// effects run off the event loop and report back through the engine's
// apply* methods.
type effects interface {
	send(m Message)
	persistRead(m readMark)
	refreshRooms()
	fetchHistory(gen uint64, roomID, before string)
	scheduleDismiss(tempID string, after time.Duration)
	notify(u Update)
}

// engine owns the directory, the open stream and the read tracker. It is not
// safe for concurrent use; Client runs it on a single goroutine.
type engine struct {
	self   string
	opts   options
	log    zerolog.Logger
	eff    effects
	dir    *Directory
	reads  *ReadTracker
	stream *Stream
	// gen changes on every room switch so late history pages for a room
	// that is no longer open can be told apart.
	gen uint64
}

func newEngine(self string, opts options, eff effects) *engine {
	dir := newDirectory(self)
	return &engine{
		self:  self,
		opts:  opts,
		log:   opts.log,
		eff:   eff,
		dir:   dir,
		reads: newReadTracker(self, dir),
	}
}

func validateContent(content string, att Attachment) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && att == nil {
		return "", fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", fmt.Errorf("%w: message longer than %d characters", ErrValidation, MaxContentLength)
	}
	return content, nil
}

// submit places a PENDING entry in the open stream and asks for it to be sent.
func (e *engine) submit(roomID, content string, att Attachment) (Message, error) {
	content, err := validateContent(content, att)
	if err != nil {
		return Message{}, err
	}
	if e.stream == nil || e.stream.roomID != roomID {
		return Message{}, ErrNoOpenRoom
	}
	m := &Message{
		TempID:     e.opts.newTempID(),
		RoomID:     roomID,
		SenderID:   e.self,
		Content:    content,
		Attachment: att,
		CreatedAt:  e.opts.now(),
		State:      Pending,
	}
	e.stream.insert(m)
	e.eff.send(*m)
	e.eff.notify(Update{Kind: StreamChanged, RoomID: roomID})
	return *m, nil
}

// applySendResult consumes the send request's own response.
func (e *engine) applySendResult(roomID, tempID string, got *Message, err error) {
	if err == nil && got != nil {
		confirmed := *got
		confirmed.State = Confirmed
		confirmed.TempID = tempID
		e.dir.applyMessage(&confirmed)
		e.eff.notify(Update{Kind: RoomsChanged, RoomID: roomID})
		got = &confirmed
	}

	s := e.stream
	if s == nil || s.roomID != roomID {
		if err != nil {
			e.eff.notify(Update{Kind: SendFailed, RoomID: roomID, TempID: tempID, Err: err})
		}
		return
	}
	pending := s.byTempID(tempID)

	if err != nil {
		if pending == nil {
			// The room was reopened while the send was in flight.
			e.log.Warn().Err(err).Str("room", roomID).Str("temp_id", tempID).Msg("send failed")
			e.eff.notify(Update{Kind: SendFailed, RoomID: roomID, TempID: tempID, Err: err})
			return
		}
		if pending.State != Pending {
			return
		}
		pending.State = Failed
		pending.Err = err
		e.log.Warn().Err(err).Str("room", roomID).Str("temp_id", tempID).Msg("send failed")
		e.eff.notify(Update{Kind: SendFailed, RoomID: roomID, TempID: tempID, Err: err})
		if e.opts.dismissAfter > 0 {
			e.eff.scheduleDismiss(tempID, e.opts.dismissAfter)
		}
		return
	}

	if existing := s.byServerID(got.ID); existing != nil {
		// The feed delivered it first. A pending entry already confirmed
		// under another id is a different message and stays.
		if pending != nil && pending != existing && pending.ID == "" {
			prev := existing.TempID
			if pending.State == Pending && prev != "" && prev != tempID && s.byTempID(prev) == existing {
				// The content match bound the feed copy to another identical
				// send that is still in flight. That send takes over this
				// unconfirmed entry.
				pending.TempID = prev
				s.index(pending)
			} else {
				s.remove(pending)
			}
		}
		existing.TempID = tempID
		s.index(existing)
		e.eff.notify(Update{Kind: StreamChanged, RoomID: roomID})
		return
	}

	if pending == nil || pending.ID != "" {
		// An entry holding another server id is a different message.
		s.insert(got)
	} else {
		s.reposition(pending, func(m *Message) { confirmInto(m, got) })
	}
	e.eff.notify(Update{Kind: StreamChanged, RoomID: roomID})
	e.markOpenRead()
}

func confirmInto(dst, src *Message) {
	tempID := dst.TempID
	*dst = *src
	if dst.TempID == "" {
		dst.TempID = tempID
	}
	dst.State = Confirmed
	dst.Err = nil
}

// applyEvent consumes one change feed event.
func (e *engine) applyEvent(ev ChangeEvent) {
	switch ev.Kind {
	case MessageInserted:
		if ev.Message != nil {
			e.applyInserted(ev.Message)
		}
	case MessageUpdated:
		if ev.Message != nil {
			e.applyUpdated(ev.Message)
		}
	case MembershipUpdated:
		if ev.Membership != nil {
			e.applyMembership(*ev.Membership)
		}
	case FeedResynced:
		e.log.Info().Msg("feed resynced, refreshing")
		e.eff.refreshRooms()
		e.resyncStream()
	default:
		e.log.Debug().Int("kind", int(ev.Kind)).Msg("ignoring unknown change event")
	}
}

func (e *engine) applyInserted(in *Message) {
	m := *in
	m.State = Confirmed
	m.Err = nil
	if !e.dir.applyMessage(&m) {
		e.eff.refreshRooms()
	}
	e.eff.notify(Update{Kind: RoomsChanged, RoomID: m.RoomID})

	if e.stream == nil || e.stream.roomID != m.RoomID {
		return
	}
	if e.reconcile(&m) {
		e.eff.notify(Update{Kind: StreamChanged, RoomID: m.RoomID})
		e.markOpenRead()
	}
}

// reconcile merges a confirmed message into the open stream. It reports
// whether the stream changed.
func (e *engine) reconcile(m *Message) bool {
	s := e.stream
	if m.ID == "" || s.byServerID(m.ID) != nil {
		return false
	}
	if p := s.byTempID(m.TempID); p != nil && p.ID == "" {
		s.reposition(p, func(dst *Message) { confirmInto(dst, m) })
		return true
	}
	if m.SenderID == e.self && m.TempID == "" {
		if p := s.matchUnconfirmed(m, e.opts.dedupWindow); p != nil {
			s.reposition(p, func(dst *Message) { confirmInto(dst, m) })
			return true
		}
	}
	cp := *m
	s.insert(&cp)
	return true
}

func (e *engine) applyUpdated(m *Message) {
	e.dir.applyMessageUpdate(m)
	e.eff.notify(Update{Kind: RoomsChanged, RoomID: m.RoomID})
	if e.stream == nil || e.stream.roomID != m.RoomID {
		return
	}
	cur := e.stream.byServerID(m.ID)
	if cur == nil {
		return
	}
	cur.Pinned = m.Pinned
	cur.Deleted = cur.Deleted || m.Deleted
	e.eff.notify(Update{Kind: StreamChanged, RoomID: m.RoomID})
}

func (e *engine) applyMembership(u Membership) {
	if _, ok := e.dir.applyMembership(u); !ok {
		if u.UserID == e.self {
			// Added to a room we have not listed yet.
			e.eff.refreshRooms()
		}
		return
	}
	if u.UserID == e.self {
		e.reads.observe(u.RoomID, u.LastReadAt)
	}
	e.eff.notify(Update{Kind: RoomsChanged, RoomID: u.RoomID})
	if e.stream != nil && e.stream.roomID == u.RoomID {
		e.eff.notify(Update{Kind: StreamChanged, RoomID: u.RoomID})
	}
}

// applyRooms merges a room list fetched from the data API.
func (e *engine) applyRooms(rooms []Room, err error) {
	if err != nil {
		e.log.Warn().Err(err).Msg("room list fetch failed")
		e.eff.notify(Update{Kind: ErrorRaised, Err: err})
		return
	}
	for _, r := range rooms {
		e.dir.upsert(r)
	}
	e.eff.notify(Update{Kind: RoomsChanged})
}

// openRoom binds a fresh stream to roomID and starts the history fetch.
func (e *engine) openRoom(roomID string) error {
	if e.dir.get(roomID) == nil {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	e.gen++
	e.stream = newStream(roomID)
	e.dir.setOpen(roomID)
	e.eff.fetchHistory(e.gen, roomID, "")
	e.markRead(roomID)
	e.eff.notify(Update{Kind: StreamChanged, RoomID: roomID})
	return nil
}

func (e *engine) closeRoom() {
	e.gen++
	e.stream = nil
	e.dir.setOpen("")
	e.eff.notify(Update{Kind: StreamChanged})
}

// resyncStream refetches the newest page of the open room after the feed
// was down. Older pages still in flight are dropped.
func (e *engine) resyncStream() {
	s := e.stream
	if s == nil {
		return
	}
	e.gen++
	s.loading = true
	s.resyncFrom = nil
	if newest := s.newestConfirmed(); newest != nil {
		anchor := *newest
		s.resyncFrom = &anchor
	}
	s.resyncing = true
	e.eff.fetchHistory(e.gen, s.roomID, "")
}

// loadOlder requests the page before the oldest confirmed entry.
func (e *engine) loadOlder() error {
	s := e.stream
	if s == nil {
		return ErrNoOpenRoom
	}
	if s.loading || s.exhausted {
		return nil
	}
	oldest := s.oldestConfirmed()
	if oldest == nil {
		return nil
	}
	s.loading = true
	e.eff.fetchHistory(e.gen, s.roomID, oldest.ID)
	return nil
}

// applyHistory merges a fetched page into the stream. Pages for a stream
// that has since been replaced are dropped.
func (e *engine) applyHistory(gen uint64, roomID, before string, msgs []Message, err error) {
	s := e.stream
	if gen != e.gen || s == nil || s.roomID != roomID {
		return
	}
	s.loading = false
	if err != nil {
		s.err = err
		e.log.Warn().Err(err).Str("room", roomID).Msg("history fetch failed")
		e.eff.notify(Update{Kind: ErrorRaised, RoomID: roomID, Err: err})
		return
	}
	s.err = nil
	if before == "" && s.resyncing {
		s.resyncing = false
		if oldest := oldestOf(msgs); len(msgs) >= e.opts.pageSize && s.resyncFrom != nil && s.resyncFrom.Before(oldest) {
			// More than a page arrived while the feed was down. What was
			// loaded before no longer joins up with the newest page.
			n := s.dropConfirmedBefore(oldest)
			s.exhausted = false
			e.log.Info().Str("room", roomID).Int("dropped", n).Msg("history gap after resync, reloading")
		}
		s.resyncFrom = nil
	}
	if len(msgs) < e.opts.pageSize {
		s.exhausted = true
	}
	for i := range msgs {
		m := msgs[i]
		m.State = Confirmed
		m.Err = nil
		if cur := s.byServerID(m.ID); cur != nil {
			cur.Pinned = m.Pinned
			cur.Deleted = cur.Deleted || m.Deleted
			continue
		}
		e.reconcile(&m)
	}
	if before == "" {
		if newest := s.newestConfirmed(); newest != nil {
			e.dir.applyMessage(newest)
		}
	}
	e.eff.notify(Update{Kind: StreamChanged, RoomID: roomID})
	e.markOpenRead()
}

func oldestOf(msgs []Message) *Message {
	var oldest *Message
	for i := range msgs {
		if oldest == nil || msgs[i].Before(oldest) {
			oldest = &msgs[i]
		}
	}
	return oldest
}

// markRead clears unread state for roomID and persists the watermark if it
// advanced.
func (e *engine) markRead(roomID string) {
	mark, write := e.reads.markRead(roomID)
	if write {
		e.eff.persistRead(mark)
	}
	e.eff.notify(Update{Kind: RoomsChanged, RoomID: roomID})
}

func (e *engine) markOpenRead() {
	if e.stream != nil {
		e.markRead(e.stream.roomID)
	}
}

func (e *engine) applyReadResult(m readMark, err error) {
	if err == nil {
		return
	}
	e.reads.rollback(m)
	e.log.Warn().Err(err).Str("room", m.roomID).Msg("mark read failed")
	e.eff.notify(Update{Kind: ErrorRaised, RoomID: m.roomID, Err: err})
}

func (e *engine) failedEntry(tempID string) (*Message, error) {
	if e.stream == nil {
		return nil, ErrNoOpenRoom
	}
	m := e.stream.byTempID(tempID)
	if m == nil {
		return nil, ErrUnknownMessage
	}
	if m.State != Failed {
		return nil, ErrNotFailed
	}
	return m, nil
}

// dismiss removes a FAILED entry.
func (e *engine) dismiss(tempID string) error {
	m, err := e.failedEntry(tempID)
	if err != nil {
		return err
	}
	e.stream.remove(m)
	e.eff.notify(Update{Kind: StreamChanged, RoomID: m.RoomID})
	return nil
}

// expire is the grace-period dismissal; entries no longer FAILED are kept.
func (e *engine) expire(tempID string) {
	if err := e.dismiss(tempID); err == nil {
		e.log.Debug().Str("temp_id", tempID).Msg("failed message expired")
	}
}

// retry resubmits a FAILED entry as a new PENDING one.
func (e *engine) retry(tempID string) (Message, error) {
	m, err := e.failedEntry(tempID)
	if err != nil {
		return Message{}, err
	}
	next, err := e.submit(m.RoomID, m.Content, m.Attachment)
	if err != nil {
		return Message{}, err
	}
	e.stream.remove(m)
	return next, nil
}

func (e *engine) receipt(messageID string) Receipt {
	if e.stream == nil {
		return ReceiptNone
	}
	m := e.stream.byServerID(messageID)
	if m == nil {
		return ReceiptNone
	}
	return e.reads.receipt(e.dir.get(e.stream.roomID), m)
}
