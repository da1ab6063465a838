package messaging

import "sort"

const seenPerRoom = 256

// recentIDs remembers the last few message ids counted for a room so that
// duplicate feed deliveries do not inflate the unread count.
type recentIDs struct {
	set   map[string]struct{}
	order []string
}

func (r *recentIDs) add(id string) bool {
	if r.set == nil {
		r.set = make(map[string]struct{})
	}
	if _, ok := r.set[id]; ok {
		return false
	}
	r.set[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > seenPerRoom {
		delete(r.set, r.order[0])
		r.order = r.order[1:]
	}
	return true
}

// Directory holds the rooms the viewing user participates in.
type Directory struct {
	self  string
	rooms map[string]*Room
	seen  map[string]*recentIDs
	open  string
}

func newDirectory(self string) *Directory {
	return &Directory{
		self:  self,
		rooms: make(map[string]*Room),
		seen:  make(map[string]*recentIDs),
	}
}

// List returns copies of all rooms, most recently active first.
func (d *Directory) List() []Room {
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (d *Directory) get(id string) *Room { return d.rooms[id] }

func (d *Directory) recent(roomID string) *recentIDs {
	r, ok := d.seen[roomID]
	if !ok {
		r = &recentIDs{}
		d.seen[roomID] = r
	}
	return r
}

// Open is the id of the room bound to the message stream, or "".
func (d *Directory) Open() string { return d.open }

func (d *Directory) setOpen(id string) { d.open = id }

// upsert merges a server copy of a room into the directory by id. Read
// watermarks never move backwards, and a private room replaces any other
// private room held for the same partner.
func (d *Directory) upsert(in Room) *Room {
	in = in.clone()
	if in.Kind == RoomPrivate {
		if p, ok := in.Partner(d.self); ok {
			for id, r := range d.rooms {
				if id == in.ID || r.Kind != RoomPrivate {
					continue
				}
				if other, ok := r.Partner(d.self); ok && other.UserID == p.UserID {
					delete(d.rooms, id)
					delete(d.seen, id)
				}
			}
		}
	}

	cur, ok := d.rooms[in.ID]
	if !ok {
		if in.LastMessage != nil && in.LastMessage.ID != "" {
			d.recent(in.ID).add(in.LastMessage.ID)
		}
		if in.ID == d.open {
			in.UnreadCount = 0
		}
		d.rooms[in.ID] = &in
		return &in
	}

	for i := range in.Members {
		if old := cur.Member(in.Members[i].UserID); old != nil && old.LastReadAt.After(in.Members[i].LastReadAt) {
			in.Members[i].LastReadAt = old.LastReadAt
		}
	}
	if cur.LastMessage != nil && (in.LastMessage == nil || in.LastMessage.Before(cur.LastMessage)) {
		in.LastMessage = cur.LastMessage
	}
	if in.LastMessage != nil && in.LastMessage.ID != "" {
		d.recent(in.ID).add(in.LastMessage.ID)
	}
	if in.ID == d.open {
		in.UnreadCount = 0
	}
	*cur = in
	return cur
}

// applyMessage records a confirmed message against its room: it refreshes
// the preview and counts it as unread when it is someone else's message in a
// room that is not open. It returns false when the room is unknown.
func (d *Directory) applyMessage(m *Message) bool {
	r := d.rooms[m.RoomID]
	if r == nil {
		return false
	}
	if r.LastMessage == nil || r.LastMessage.ID == m.ID || r.LastMessage.Before(m) {
		cp := *m
		cp.Err = nil
		r.LastMessage = &cp
	}
	if m.ID == "" || !d.recent(r.ID).add(m.ID) {
		return true
	}
	if m.SenderID == d.self || m.Deleted || r.ID == d.open {
		return true
	}
	if me := r.Member(d.self); me != nil && !m.CreatedAt.After(me.LastReadAt) {
		return true
	}
	r.UnreadCount++
	return true
}

func (d *Directory) applyMessageUpdate(m *Message) {
	r := d.rooms[m.RoomID]
	if r == nil || r.LastMessage == nil || r.LastMessage.ID != m.ID {
		return
	}
	r.LastMessage.Pinned = m.Pinned
	r.LastMessage.Deleted = r.LastMessage.Deleted || m.Deleted
}

// applyMembership patches a membership row in place. A watermark for the
// viewing user that covers the latest message clears the unread count.
func (d *Directory) applyMembership(u Membership) (*Room, bool) {
	r := d.rooms[u.RoomID]
	if r == nil {
		return nil, false
	}
	cur := r.Member(u.UserID)
	if cur == nil {
		r.Members = append(r.Members, u)
		cur = &r.Members[len(r.Members)-1]
	} else {
		if u.LastReadAt.After(cur.LastReadAt) {
			cur.LastReadAt = u.LastReadAt
		}
		if u.Role != "" {
			cur.Role = u.Role
		}
		if u.Username != "" {
			cur.Username = u.Username
		}
	}
	if u.UserID == d.self && r.LastMessage != nil && !cur.LastReadAt.Before(r.LastMessage.CreatedAt) {
		r.UnreadCount = 0
	}
	return r, true
}

func (d *Directory) findPrivateWith(partner string) *Room {
	for _, r := range d.rooms {
		if r.Kind != RoomPrivate {
			continue
		}
		if p, ok := r.Partner(d.self); ok && p.UserID == partner {
			return r
		}
	}
	return nil
}
