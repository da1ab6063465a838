package messaging

import (
	"context"
	"fmt"
)

// modOp is an optimistic moderation change awaiting confirmation.
type modOp struct {
	roomID    string
	messageID string
	before    flags
	after     flags
}

type flags struct {
	pinned  bool
	deleted bool
}

// beginModeration checks the viewing user's role and applies patch to the
// stream entry in place.
func (e *engine) beginModeration(messageID string, patch ModerationPatch) (*modOp, error) {
	if patch.Pinned == nil && patch.Deleted == nil {
		return nil, fmt.Errorf("%w: empty moderation patch", ErrValidation)
	}
	if patch.Deleted != nil && !*patch.Deleted {
		return nil, fmt.Errorf("%w: deleted messages cannot be restored", ErrValidation)
	}
	s := e.stream
	if s == nil {
		return nil, ErrNoOpenRoom
	}
	m := s.byServerID(messageID)
	if m == nil {
		return nil, ErrUnknownMessage
	}
	if err := e.canModerate(s.roomID); err != nil {
		return nil, err
	}

	op := &modOp{
		roomID:    s.roomID,
		messageID: messageID,
		before:    flags{pinned: m.Pinned, deleted: m.Deleted},
	}
	if patch.Pinned != nil {
		m.Pinned = *patch.Pinned
	}
	if patch.Deleted != nil {
		m.Deleted = true
	}
	op.after = flags{pinned: m.Pinned, deleted: m.Deleted}
	e.eff.notify(Update{Kind: StreamChanged, RoomID: s.roomID})
	return op, nil
}

func (e *engine) canModerate(roomID string) error {
	r := e.dir.get(roomID)
	if r == nil {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if r.Kind != RoomGroup {
		return fmt.Errorf("%w: moderation is only available in group rooms", ErrUnauthorized)
	}
	me := r.Member(e.self)
	if me == nil || !me.Role.CanModerate() {
		return fmt.Errorf("%w: moderator role required", ErrUnauthorized)
	}
	return nil
}

// finishModeration settles an optimistic change. On rejection the entry is
// restored unless something else has changed it since.
func (e *engine) finishModeration(op *modOp, err error) {
	s := e.stream
	var m *Message
	if s != nil && s.roomID == op.roomID {
		m = s.byServerID(op.messageID)
	}
	if err == nil {
		if m != nil {
			e.dir.applyMessageUpdate(m)
			e.eff.notify(Update{Kind: RoomsChanged, RoomID: op.roomID})
		}
		return
	}
	e.log.Warn().Err(err).Str("message", op.messageID).Msg("moderation rejected")
	if m != nil && m.Pinned == op.after.pinned && m.Deleted == op.after.deleted {
		m.Pinned = op.before.pinned
		m.Deleted = op.before.deleted
		e.eff.notify(Update{Kind: StreamChanged, RoomID: op.roomID})
	}
	e.eff.notify(Update{Kind: ErrorRaised, RoomID: op.roomID, Err: err})
}

// currentPin is the earliest created pinned message that is still visible.
func (e *engine) currentPin() (Message, bool) {
	if e.stream == nil {
		return Message{}, false
	}
	for _, m := range e.stream.entries {
		if m.Pinned && !m.Deleted {
			return *m, true
		}
	}
	return Message{}, false
}

// SetPinned pins or unpins a message in the open room.
func (c *Client) SetPinned(ctx context.Context, messageID string, pinned bool) error {
	return c.moderate(ctx, messageID, ModerationPatch{Pinned: &pinned})
}

// SoftDelete hides a message in the open room. Its slot in the stream is kept.
func (c *Client) SoftDelete(ctx context.Context, messageID string) error {
	deleted := true
	return c.moderate(ctx, messageID, ModerationPatch{Deleted: &deleted})
}

func (c *Client) moderate(ctx context.Context, messageID string, patch ModerationPatch) error {
	var op *modOp
	var err error
	if derr := c.do(func() { op, err = c.engine.beginModeration(messageID, patch) }); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}
	apiErr := c.api.Moderate(ctx, messageID, patch)
	if derr := c.do(func() { c.engine.finishModeration(op, apiErr) }); derr != nil {
		return derr
	}
	return apiErr
}

// CurrentPin returns the pin a single-pin UI should show.
func (c *Client) CurrentPin() (Message, bool) {
	var m Message
	var ok bool
	_ = c.do(func() { m, ok = c.engine.currentPin() })
	return m, ok
}
