package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/thereayou/campus-chat/internal/messaging"
)

type terminal struct {
	client *messaging.Client
	self   string
	out    io.Writer
	// shown remembers the rendered line per stream key, so only changes are
	// printed again.
	shown map[string]string
}

// parseCommand splits "/cmd arg" into its parts. Plain text becomes "say".
func parseCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	if !strings.HasPrefix(line, "/") {
		return "say", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func (t *terminal) onUpdate(u messaging.Update) {
	switch u.Kind {
	case messaging.StreamChanged:
		t.printStream()
	case messaging.SendFailed:
		fmt.Fprintf(t.out, "! message %s failed: %v (/retry or /dismiss it)\n", u.TempID, u.Err)
	case messaging.ErrorRaised:
		fmt.Fprintln(t.out, "!", u.Err)
	}
}

func (t *terminal) printRooms() {
	rooms := t.client.Rooms()
	if len(rooms) == 0 {
		fmt.Fprintln(t.out, "no rooms yet, start one with /dm <user-id>")
		return
	}
	open := t.client.OpenRoomID()
	for i := range rooms {
		fmt.Fprintln(t.out, roomLine(&rooms[i], t.self, rooms[i].ID == open))
	}
}

func roomLine(r *messaging.Room, self string, open bool) string {
	marker := " "
	if open {
		marker = ">"
	}
	title := r.DisplayName(self)
	if r.Kind == messaging.RoomPrivate {
		title = "@" + title
	}
	line := fmt.Sprintf("%s %s  %-24s", marker, r.ID, title)
	if r.UnreadCount > 0 {
		line += fmt.Sprintf("  (%d unread)", r.UnreadCount)
	}
	return line
}

const pinKey = "\x00pin"

func (t *terminal) printStream() {
	if pin, ok := t.client.CurrentPin(); ok {
		if t.shown[pinKey] != pin.Key() {
			t.shown[pinKey] = pin.Key()
			fmt.Fprintln(t.out, "pinned:", pin.Content)
		}
	}
	for _, m := range t.client.Messages() {
		var receipt messaging.Receipt
		if m.ID != "" && m.SenderID == t.self {
			receipt = t.client.Receipt(m.ID)
		}
		line := messageLine(m, t.self, receipt)
		if t.shown[m.Key()] == line {
			continue
		}
		t.shown[m.Key()] = line
		fmt.Fprintln(t.out, line)
	}
}

func messageLine(m messaging.Message, self string, receipt messaging.Receipt) string {
	who := m.SenderID
	if who == self {
		who = "me"
	} else if len(who) > 8 {
		who = who[:8]
	}
	body := m.Content
	if m.Deleted {
		body = "[deleted]"
	} else if m.Attachment != nil {
		_, name := m.Attachment.Descriptor()
		body = strings.TrimSpace(body + " [" + messaging.AttachmentKind(m.Attachment) + ": " + name + "]")
	}

	line := fmt.Sprintf("%s %-8s %s", m.CreatedAt.Local().Format("15:04"), who, body)
	switch m.State {
	case messaging.Pending:
		line += "  …"
	case messaging.Failed:
		line += "  ✗ " + m.TempID
	default:
		switch receipt {
		case messaging.ReceiptSent:
			line += "  ✓"
		case messaging.ReceiptSeen:
			line += "  ✓✓"
		}
	}
	if m.Pinned && !m.Deleted {
		line += "  [pinned]"
	}
	return line
}
