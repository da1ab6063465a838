package messaging

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fetchCall struct {
	gen    uint64
	roomID string
	before string
}

type recorder struct {
	sent       []Message
	reads      []readMark
	refreshes  int
	fetches    []fetchCall
	dismissals []string
	updates    []Update
}

func (r *recorder) send(m Message)         { r.sent = append(r.sent, m) }
func (r *recorder) persistRead(m readMark) { r.reads = append(r.reads, m) }
func (r *recorder) refreshRooms()          { r.refreshes++ }
func (r *recorder) notify(u Update)        { r.updates = append(r.updates, u) }
func (r *recorder) scheduleDismiss(id string, _ time.Duration) {
	r.dismissals = append(r.dismissals, id)
}
func (r *recorder) fetchHistory(gen uint64, roomID, before string) {
	r.fetches = append(r.fetches, fetchCall{gen, roomID, before})
}

func newTestEngine(t *testing.T, opts ...Option) (*engine, *recorder) {
	t.Helper()
	tick, n := 0, 0
	opts = append([]Option{
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithTempIDs(func() string {
			n++
			return fmt.Sprintf("t%d", n)
		}),
	}, opts...)
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	rec := &recorder{}
	return newEngine("alice", o, rec), rec
}

func privateRoom() Room {
	return Room{
		ID:   "r1",
		Kind: RoomPrivate,
		Members: []Membership{
			{UserID: "alice", RoomID: "r1", Username: "Alice"},
			{UserID: "bob", RoomID: "r1", Username: "Bob"},
		},
		CreatedAt: base.Add(-time.Hour),
	}
}

func groupRoom(aliceRole Role) Room {
	return Room{
		ID:   "g1",
		Kind: RoomGroup,
		Name: "Physics 101",
		Members: []Membership{
			{UserID: "alice", RoomID: "g1", Role: aliceRole},
			{UserID: "bob", RoomID: "g1", Role: RoleMember},
			{UserID: "carol", RoomID: "g1", Role: RoleMember},
		},
		CreatedAt: base.Add(-2 * time.Hour),
	}
}

// openEmpty opens roomID and lands an empty first history page.
func openEmpty(t *testing.T, e *engine, roomID string) {
	t.Helper()
	if err := e.openRoom(roomID); err != nil {
		t.Fatalf("openRoom(%s): %v", roomID, err)
	}
	e.applyHistory(e.gen, roomID, "", nil, nil)
}

func visible(e *engine) []Message {
	if e.stream == nil {
		return nil
	}
	return e.stream.Visible()
}

func serverCopy(m Message, id string, at time.Time, echo bool) *Message {
	out := &Message{
		ID:        id,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: at,
		State:     Confirmed,
	}
	if echo {
		out.TempID = m.TempID
	}
	return out
}

func TestSendResponseThenDuplicateFeedEvent(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	local, err := e.submit("r1", "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if local.TempID != "t1" || local.State != Pending {
		t.Fatalf("unexpected local message %+v", local)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected one send request, got %d", len(rec.sent))
	}
	if got := visible(e); len(got) != 1 || got[0].State != Pending {
		t.Fatalf("expected one pending entry, got %+v", got)
	}

	confirmed := serverCopy(local, "m42", base.Add(1500*time.Millisecond), true)
	e.applySendResult("r1", "t1", confirmed, nil)

	got := visible(e)
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	if got[0].ID != "m42" || got[0].Content != "hello" || got[0].State != Confirmed {
		t.Fatalf("unexpected entry %+v", got[0])
	}

	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: serverCopy(local, "m42", confirmed.CreatedAt, true)})
	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: serverCopy(local, "m42", confirmed.CreatedAt, false)})

	if got := visible(e); len(got) != 1 || got[0].ID != "m42" {
		t.Fatalf("duplicate feed event changed the stream: %+v", got)
	}
	if n := e.dir.get("r1").UnreadCount; n != 0 {
		t.Fatalf("own message counted as unread: %d", n)
	}
}

func TestFeedEventBeforeSendResponse(t *testing.T) {
	tests := []struct {
		name string
		echo bool
	}{
		{name: "client id echoed", echo: true},
		{name: "content heuristic", echo: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			e.applyRooms([]Room{privateRoom()}, nil)
			openEmpty(t, e, "r1")

			local, _ := e.submit("r1", "hello", nil)
			at := local.CreatedAt.Add(300 * time.Millisecond)

			e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: serverCopy(local, "m42", at, tt.echo)})
			got := visible(e)
			if len(got) != 1 || got[0].ID != "m42" || got[0].State != Confirmed {
				t.Fatalf("feed did not confirm the pending entry: %+v", got)
			}

			e.applySendResult("r1", local.TempID, serverCopy(local, "m42", at, tt.echo), nil)
			got = visible(e)
			if len(got) != 1 || got[0].ID != "m42" {
				t.Fatalf("send response duplicated the message: %+v", got)
			}
		})
	}
}

func TestIdenticalSendsWithoutEcho(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
	}{
		{name: "feed first, responses in order", steps: []string{"feed m1", "send t1", "send t2", "feed m2"}},
		{name: "feed first, responses reversed", steps: []string{"feed m1", "send t2", "send t1", "feed m2"}},
		{name: "both feeds first", steps: []string{"feed m1", "feed m2", "send t2", "send t1"}},
		{name: "responses first", steps: []string{"send t1", "send t2", "feed m1", "feed m2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			e.applyRooms([]Room{privateRoom()}, nil)
			openEmpty(t, e, "r1")

			first, _ := e.submit("r1", "ok", nil)
			second, _ := e.submit("r1", "ok", nil)
			// Both server rows sit closer to the second send, so a content
			// match picks it for m1.
			rows := map[string]*Message{
				"m1": serverCopy(first, "m1", second.CreatedAt.Add(100*time.Millisecond), false),
				"m2": serverCopy(second, "m2", second.CreatedAt.Add(200*time.Millisecond), false),
			}
			for _, step := range tt.steps {
				switch step {
				case "feed m1":
					e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: rows["m1"]})
				case "feed m2":
					e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: rows["m2"]})
				case "send t1":
					e.applySendResult("r1", first.TempID, rows["m1"], nil)
				case "send t2":
					e.applySendResult("r1", second.TempID, rows["m2"], nil)
				}
			}

			got := visible(e)
			if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
				t.Fatalf("expected [m1 m2], got %+v", got)
			}
			for _, m := range got {
				if m.State != Confirmed {
					t.Fatalf("%s left in state %v", m.ID, m.State)
				}
			}
			if m := e.stream.byTempID(first.TempID); m == nil || m.ID != "m1" {
				t.Fatalf("first send resolves to %+v", m)
			}
			if m := e.stream.byTempID(second.TempID); m == nil || m.ID != "m2" {
				t.Fatalf("second send resolves to %+v", m)
			}
		})
	}
}

func TestSendFailureAfterReopenIsSurfaced(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom(), groupRoom(RoleMember)}, nil)
	openEmpty(t, e, "r1")

	local, _ := e.submit("r1", "hello", nil)
	openEmpty(t, e, "g1")
	openEmpty(t, e, "r1")
	e.applySendResult("r1", local.TempID, nil, fmt.Errorf("dial: %w", ErrTransient))

	var failed *Update
	for i := range rec.updates {
		if rec.updates[i].Kind == SendFailed {
			failed = &rec.updates[i]
		}
	}
	if failed == nil {
		t.Fatal("send failure was not surfaced")
	}
	if failed.RoomID != "r1" || failed.TempID != local.TempID || !errors.Is(failed.Err, ErrTransient) {
		t.Fatalf("unexpected update %+v", *failed)
	}
}

func TestFeedFromOtherTabThenSendResponse(t *testing.T) {
	e, _ := newTestEngine(t, WithDedupWindow(0))
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	local, _ := e.submit("r1", "hello", nil)
	// Heuristic window is zero and no echo: the feed copy lands as its own entry.
	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: serverCopy(local, "m42", local.CreatedAt.Add(time.Second), false)})
	if n := len(visible(e)); n != 2 {
		t.Fatalf("expected pending and feed entries before the response, got %d", n)
	}

	e.applySendResult("r1", local.TempID, serverCopy(local, "m42", local.CreatedAt.Add(time.Second), false), nil)
	got := visible(e)
	if len(got) != 1 || got[0].ID != "m42" {
		t.Fatalf("expected entries to collapse to m42, got %+v", got)
	}
}

func TestOtherUsersMessageArrivesOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	m := &Message{ID: "m7", RoomID: "r1", SenderID: "bob", Content: "hi", CreatedAt: base}
	for i := 0; i < 3; i++ {
		e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: m})
	}
	if got := visible(e); len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
}

func TestSendFailureAndRetry(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	local, _ := e.submit("r1", "hello", nil)
	sendErr := fmt.Errorf("dial: %w", ErrTransient)
	e.applySendResult("r1", local.TempID, nil, sendErr)

	got := visible(e)
	if len(got) != 1 || got[0].State != Failed || !errors.Is(got[0].Err, ErrTransient) {
		t.Fatalf("expected a failed entry, got %+v", got)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("failure must not be retried silently, sends=%d", len(rec.sent))
	}
	var failedUpdate bool
	for _, u := range rec.updates {
		if u.Kind == SendFailed && u.TempID == local.TempID {
			failedUpdate = true
		}
	}
	if !failedUpdate {
		t.Fatal("expected a SendFailed update")
	}

	next, err := e.retry(local.TempID)
	if err != nil {
		t.Fatal(err)
	}
	if next.TempID == local.TempID || next.State != Pending {
		t.Fatalf("retry should create a new pending entry, got %+v", next)
	}
	got = visible(e)
	if len(got) != 1 || got[0].TempID != next.TempID {
		t.Fatalf("failed entry should be replaced by the retry, got %+v", got)
	}
	if len(rec.sent) != 2 {
		t.Fatalf("expected a second send request, got %d", len(rec.sent))
	}

	if _, err := e.retry(next.TempID); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("retrying a pending entry: got %v", err)
	}
}

func TestFailedEntryDismissal(t *testing.T) {
	e, rec := newTestEngine(t, WithDismissAfter(time.Minute))
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	local, _ := e.submit("r1", "hello", nil)
	e.applySendResult("r1", local.TempID, nil, ErrTransient)
	if len(rec.dismissals) != 1 || rec.dismissals[0] != local.TempID {
		t.Fatalf("expected a scheduled dismissal, got %v", rec.dismissals)
	}
	e.expire(local.TempID)
	if n := len(visible(e)); n != 0 {
		t.Fatalf("expired entry still visible: %d", n)
	}
	if err := e.dismiss(local.TempID); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("second dismissal: got %v", err)
	}
}

func TestLateFeedConfirmsFailedSend(t *testing.T) {
	e, _ := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	local, _ := e.submit("r1", "hello", nil)
	e.applySendResult("r1", local.TempID, nil, ErrTransient)
	// The request reached the server even though the response was lost.
	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: serverCopy(local, "m9", local.CreatedAt, true)})

	got := visible(e)
	if len(got) != 1 || got[0].ID != "m9" || got[0].State != Confirmed {
		t.Fatalf("expected the failed entry to be confirmed, got %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")

	long := make([]rune, MaxContentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	for _, content := range []string{"", "   ", string(long)} {
		if _, err := e.submit("r1", content, nil); !errors.Is(err, ErrValidation) {
			t.Errorf("submit(%d runes): got %v, want ErrValidation", len([]rune(content)), err)
		}
	}
	if _, err := e.submit("r1", "", ImageAttachment{URL: "https://cdn/x.png", Name: "x.png"}); err != nil {
		t.Errorf("attachment-only message rejected: %v", err)
	}
	if _, err := e.submit("g1", "hi", nil); !errors.Is(err, ErrNoOpenRoom) {
		t.Errorf("submit to a room that is not open: got %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected only the valid message to be sent, got %d", len(rec.sent))
	}
}

func TestStreamOrderIndependentOfArrival(t *testing.T) {
	msgs := make([]*Message, 0, 40)
	for i := 0; i < 40; i++ {
		msgs = append(msgs, &Message{
			ID:        fmt.Sprintf("m%02d", i),
			RoomID:    "r1",
			SenderID:  "bob",
			Content:   "x",
			CreatedAt: base.Add(time.Duration(i/3) * time.Second),
		})
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		e, _ := newTestEngine(t)
		e.applyRooms([]Room{privateRoom()}, nil)
		openEmpty(t, e, "r1")

		order := rng.Perm(len(msgs))
		half := len(order) / 2
		for _, i := range order[:half] {
			e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: msgs[i]})
		}
		page := make([]Message, 0, len(order)-half)
		for _, i := range order[half:] {
			page = append(page, *msgs[i])
		}
		e.applyHistory(e.gen, "r1", "", page, nil)

		got := visible(e)
		if len(got) != len(msgs) {
			t.Fatalf("round %d: expected %d entries, got %d", round, len(msgs), len(got))
		}
		for i := 1; i < len(got); i++ {
			if !got[i-1].Before(&got[i]) {
				t.Fatalf("round %d: %s not before %s", round, got[i-1].ID, got[i].ID)
			}
		}
	}
}

func TestStaleHistoryIsDropped(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom(), groupRoom(RoleMember)}, nil)

	if err := e.openRoom("r1"); err != nil {
		t.Fatal(err)
	}
	stale := rec.fetches[len(rec.fetches)-1]
	if err := e.openRoom("g1"); err != nil {
		t.Fatal(err)
	}

	e.applyHistory(stale.gen, "r1", "", []Message{{ID: "old", RoomID: "r1", SenderID: "bob", CreatedAt: base}}, nil)
	if n := len(visible(e)); n != 0 {
		t.Fatalf("stale page applied to the new stream: %d entries", n)
	}
	if e.stream.RoomID() != "g1" || !e.stream.Loading() {
		t.Fatal("g1 stream should still be loading")
	}
}

func TestLoadOlderPaging(t *testing.T) {
	e, rec := newTestEngine(t, WithHistoryPageSize(2))
	e.applyRooms([]Room{privateRoom()}, nil)
	if err := e.openRoom("r1"); err != nil {
		t.Fatal(err)
	}
	e.applyHistory(e.gen, "r1", "", []Message{
		{ID: "m3", RoomID: "r1", SenderID: "bob", CreatedAt: base.Add(3 * time.Second)},
		{ID: "m4", RoomID: "r1", SenderID: "bob", CreatedAt: base.Add(4 * time.Second)},
	}, nil)

	if err := e.loadOlder(); err != nil {
		t.Fatal(err)
	}
	last := rec.fetches[len(rec.fetches)-1]
	if last.before != "m3" {
		t.Fatalf("expected page before m3, got %+v", last)
	}
	e.applyHistory(last.gen, "r1", "m3", []Message{
		{ID: "m1", RoomID: "r1", SenderID: "bob", CreatedAt: base.Add(1 * time.Second)},
	}, nil)
	if !e.stream.Exhausted() {
		t.Fatal("short page should exhaust history")
	}
	fetches := len(rec.fetches)
	if err := e.loadOlder(); err != nil || len(rec.fetches) != fetches {
		t.Fatalf("exhausted stream fetched again: err=%v fetches=%d", err, len(rec.fetches))
	}
	got := visible(e)
	if len(got) != 3 || got[0].ID != "m1" || got[2].ID != "m4" {
		t.Fatalf("unexpected stream %+v", got)
	}
}

func TestHistoryErrorIsStreamLevel(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	if err := e.openRoom("r1"); err != nil {
		t.Fatal(err)
	}
	e.applyHistory(e.gen, "r1", "", nil, ErrTransient)
	if !errors.Is(e.stream.Err(), ErrTransient) || e.stream.Loading() {
		t.Fatalf("expected stream error state, got err=%v loading=%v", e.stream.Err(), e.stream.Loading())
	}
	// Live events still land.
	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: &Message{ID: "m1", RoomID: "r1", SenderID: "bob", CreatedAt: base}})
	if n := len(visible(e)); n != 1 {
		t.Fatalf("expected live event to apply, got %d", n)
	}
	var raised bool
	for _, u := range rec.updates {
		raised = raised || (u.Kind == ErrorRaised && u.RoomID == "r1")
	}
	if !raised {
		t.Fatal("expected an ErrorRaised update")
	}
}

func TestUnknownRoomTriggersRefresh(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	before := rec.refreshes
	e.applyEvent(ChangeEvent{Kind: MessageInserted, Message: &Message{ID: "x", RoomID: "new", SenderID: "dave", CreatedAt: base}})
	if rec.refreshes != before+1 {
		t.Fatalf("expected a room refresh, got %d", rec.refreshes-before)
	}
}

func TestFeedResyncRefetches(t *testing.T) {
	e, rec := newTestEngine(t)
	e.applyRooms([]Room{privateRoom()}, nil)
	openEmpty(t, e, "r1")
	fetches, refreshes := len(rec.fetches), rec.refreshes

	e.applyEvent(ChangeEvent{Kind: FeedResynced})
	if rec.refreshes != refreshes+1 || len(rec.fetches) != fetches+1 {
		t.Fatalf("expected room and history refresh, got refreshes+%d fetches+%d",
			rec.refreshes-refreshes, len(rec.fetches)-fetches)
	}
}

func bobAt(id string, at time.Time) Message {
	return Message{ID: id, RoomID: "r1", SenderID: "bob", Content: id, CreatedAt: at}
}

func TestFeedResyncAfterGapReloadsHistory(t *testing.T) {
	e, rec := newTestEngine(t, WithHistoryPageSize(2))
	e.applyRooms([]Room{privateRoom()}, nil)
	if err := e.openRoom("r1"); err != nil {
		t.Fatal(err)
	}
	e.applyHistory(e.gen, "r1", "", []Message{bobAt("m1", base.Add(-time.Hour))}, nil)
	if !e.stream.Exhausted() {
		t.Fatal("short first page should exhaust history")
	}
	local, _ := e.submit("r1", "still sending", nil)

	// m2..m5 arrive while the feed is down.
	e.applyEvent(ChangeEvent{Kind: FeedResynced})
	if !e.stream.Loading() {
		t.Fatal("resync fetch should mark the stream loading")
	}
	resync := rec.fetches[len(rec.fetches)-1]
	if resync.before != "" || resync.gen != e.gen {
		t.Fatalf("unexpected resync fetch %+v", resync)
	}
	e.applyHistory(resync.gen, "r1", "", []Message{
		bobAt("m4", base.Add(4*time.Minute)),
		bobAt("m5", base.Add(5*time.Minute)),
	}, nil)

	if e.stream.Exhausted() || e.stream.Loading() {
		t.Fatalf("expected more history to load, exhausted=%v loading=%v", e.stream.Exhausted(), e.stream.Loading())
	}
	if e.stream.byServerID("m1") != nil {
		t.Fatal("entry before the gap kept")
	}
	if m := e.stream.byTempID(local.TempID); m == nil || m.State != Pending {
		t.Fatalf("pending send lost across resync: %+v", m)
	}

	if err := e.loadOlder(); err != nil {
		t.Fatal(err)
	}
	older := rec.fetches[len(rec.fetches)-1]
	if older.before != "m4" {
		t.Fatalf("expected page before m4, got %+v", older)
	}
	e.applyHistory(older.gen, "r1", "m4", []Message{
		bobAt("m2", base.Add(2*time.Minute)),
		bobAt("m3", base.Add(3*time.Minute)),
	}, nil)
	if err := e.loadOlder(); err != nil {
		t.Fatal(err)
	}
	older = rec.fetches[len(rec.fetches)-1]
	e.applyHistory(older.gen, "r1", "m2", []Message{bobAt("m1", base.Add(-time.Hour))}, nil)

	var ids []string
	for _, m := range visible(e) {
		if m.State == Confirmed {
			ids = append(ids, m.ID)
		}
	}
	if fmt.Sprint(ids) != "[m1 m2 m3 m4 m5]" {
		t.Fatalf("unexpected history %v", ids)
	}
}

func TestFeedResyncWithoutGapKeepsHistory(t *testing.T) {
	e, rec := newTestEngine(t, WithHistoryPageSize(2))
	e.applyRooms([]Room{privateRoom()}, nil)
	if err := e.openRoom("r1"); err != nil {
		t.Fatal(err)
	}
	e.applyHistory(e.gen, "r1", "", []Message{
		bobAt("m3", base.Add(3*time.Minute)),
		bobAt("m4", base.Add(4*time.Minute)),
	}, nil)

	if err := e.loadOlder(); err != nil {
		t.Fatal(err)
	}
	inflight := rec.fetches[len(rec.fetches)-1]

	e.applyEvent(ChangeEvent{Kind: FeedResynced})
	resync := rec.fetches[len(rec.fetches)-1]

	// The older page requested before the resync is dropped and does not
	// end the resync's loading state.
	e.applyHistory(inflight.gen, "r1", "m3", []Message{
		bobAt("m1", base.Add(time.Minute)),
		bobAt("m2", base.Add(2*time.Minute)),
	}, nil)
	if !e.stream.Loading() || e.stream.byServerID("m1") != nil {
		t.Fatal("page from before the resync was applied")
	}

	e.applyHistory(resync.gen, "r1", "", []Message{
		bobAt("m4", base.Add(4*time.Minute)),
		bobAt("m5", base.Add(5*time.Minute)),
	}, nil)
	got := visible(e)
	if len(got) != 3 || got[0].ID != "m3" || got[2].ID != "m5" {
		t.Fatalf("expected [m3 m4 m5], got %+v", got)
	}
	if e.stream.Loading() || e.stream.Exhausted() {
		t.Fatalf("unexpected state loading=%v exhausted=%v", e.stream.Loading(), e.stream.Exhausted())
	}
	if err := e.loadOlder(); err != nil {
		t.Fatal(err)
	}
	if last := rec.fetches[len(rec.fetches)-1]; last.before != "m3" {
		t.Fatalf("expected page before m3, got %+v", last)
	}
}
