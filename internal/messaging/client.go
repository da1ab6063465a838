package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// UpdateKind says what an observer should re-read.
type UpdateKind int

const (
	RoomsChanged UpdateKind = iota + 1
	StreamChanged
	SendFailed
	ErrorRaised
)

// Update is a change notification delivered to subscribers.
type Update struct {
	Kind   UpdateKind
	RoomID string
	TempID string
	Err    error
}

const (
	queueSize      = 64
	subscriberSize = 32
)

// Client is the messaging core for one logged-in user. All state lives on
// the goroutine running Run; public methods hand work to it and wait.
type Client struct {
	self string
	api  DataAPI
	log  zerolog.Logger
	opts options

	engine *engine
	queue  chan func()
	done   chan struct{}
	runCtx context.Context

	provisioning singleflight.Group

	// loop-owned
	refreshing   bool
	refreshAgain bool

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// New builds a client for the user self. Run must be started before other
// methods return.
func New(self string, api DataAPI, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		self:   self,
		api:    api,
		log:    o.log.With().Str("component", "messaging").Str("user", self).Logger(),
		opts:   o,
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		runCtx: context.Background(),
		subs:   make(map[int]chan Update),
	}
	o.log = c.log
	c.engine = newEngine(self, o, c)
	return c
}

// Run is the event loop. It fetches the room list, then applies queued work
// and feed events one at a time until ctx is cancelled. A nil feed, or one
// that closes, leaves the client working from fetches alone.
func (c *Client) Run(ctx context.Context, feed Feed) error {
	c.runCtx = ctx
	defer close(c.done)

	var events <-chan ChangeEvent
	if feed != nil {
		events = feed.Events()
	}
	c.refreshRooms()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.queue:
			fn()
		case ev, ok := <-events:
			if !ok {
				c.log.Warn().Msg("change feed closed, falling back to fetch on open")
				events = nil
				continue
			}
			c.engine.applyEvent(ev)
		}
	}
}

// do runs fn on the loop and waits for it.
func (c *Client) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.queue <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrClientStopped
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClientStopped
	}
}

// post queues fn from a goroutine other than the loop.
func (c *Client) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

// effects

func (c *Client) send(m Message) {
	go func() {
		got, err := c.api.SendMessage(c.runCtx, SendRequest{
			RoomID:     m.RoomID,
			ClientID:   m.TempID,
			Content:    m.Content,
			Attachment: m.Attachment,
		})
		c.post(func() { c.engine.applySendResult(m.RoomID, m.TempID, got, err) })
	}()
}

func (c *Client) persistRead(mark readMark) {
	go func() {
		err := c.api.MarkRead(c.runCtx, mark.roomID, mark.at)
		c.post(func() { c.engine.applyReadResult(mark, err) })
	}()
}

// refreshRooms runs at most one room list fetch at a time; a request made
// while one is in flight schedules exactly one more.
func (c *Client) refreshRooms() {
	if c.refreshing {
		c.refreshAgain = true
		return
	}
	c.refreshing = true
	go func() {
		rooms, err := c.api.ListRooms(c.runCtx)
		c.post(func() {
			c.refreshing = false
			c.engine.applyRooms(rooms, err)
			if c.refreshAgain {
				c.refreshAgain = false
				c.refreshRooms()
			}
		})
	}()
}

func (c *Client) fetchHistory(gen uint64, roomID, before string) {
	limit := c.opts.pageSize
	go func() {
		msgs, err := c.api.ListMessages(c.runCtx, roomID, before, limit)
		c.post(func() { c.engine.applyHistory(gen, roomID, before, msgs, err) })
	}()
}

func (c *Client) scheduleDismiss(tempID string, after time.Duration) {
	time.AfterFunc(after, func() {
		c.post(func() { c.engine.expire(tempID) })
	})
}

func (c *Client) notify(u Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
			c.log.Debug().Int("kind", int(u.Kind)).Msg("subscriber slow, update dropped")
		}
	}
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Updates are dropped for subscribers that fall behind.
func (c *Client) Subscribe() (<-chan Update, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Update, subscriberSize)
	c.subs[id] = ch
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

// Self is the viewing user's id.
func (c *Client) Self() string { return c.self }

// Rooms returns the directory, most recently active first.
func (c *Client) Rooms() []Room {
	var rooms []Room
	_ = c.do(func() { rooms = c.engine.dir.List() })
	return rooms
}

// RefreshRooms re-fetches the room list in the background.
func (c *Client) RefreshRooms() error {
	return c.do(c.refreshRooms)
}

// OpenRoom makes roomID the open room: the previous stream is dropped, history
// is fetched and the room is marked read.
func (c *Client) OpenRoom(roomID string) error {
	var err error
	if derr := c.do(func() { err = c.engine.openRoom(roomID) }); derr != nil {
		return derr
	}
	return err
}

// CloseRoom unbinds the stream. Events keep updating the directory.
func (c *Client) CloseRoom() error {
	return c.do(c.engine.closeRoom)
}

// OpenRoomID is the id of the open room, or "".
func (c *Client) OpenRoomID() string {
	var id string
	_ = c.do(func() { id = c.engine.dir.Open() })
	return id
}

// Messages returns the visible entries of the open stream in order.
func (c *Client) Messages() []Message {
	var out []Message
	_ = c.do(func() {
		if c.engine.stream != nil {
			out = c.engine.stream.Visible()
		}
	})
	return out
}

// StreamStatus reports the open stream's loading and error state.
func (c *Client) StreamStatus() (loading, exhausted bool, err error) {
	_ = c.do(func() {
		if s := c.engine.stream; s != nil {
			loading, exhausted, err = s.loading, s.exhausted, s.err
		}
	})
	return loading, exhausted, err
}

// LoadOlder fetches the previous page of history for the open room.
func (c *Client) LoadOlder() error {
	var err error
	if derr := c.do(func() { err = c.engine.loadOlder() }); derr != nil {
		return derr
	}
	return err
}

// Send submits a text message to the open room. The returned entry is
// PENDING; its outcome arrives through Subscribe.
func (c *Client) Send(roomID, content string) (Message, error) {
	return c.submit(roomID, content, nil)
}

func (c *Client) submit(roomID, content string, att Attachment) (Message, error) {
	var m Message
	var err error
	if derr := c.do(func() { m, err = c.engine.submit(roomID, content, att) }); derr != nil {
		return Message{}, derr
	}
	return m, err
}

// SendAttachment uploads file to object storage, then submits a message
// carrying it. Nothing is added to the stream if the upload fails.
func (c *Client) SendAttachment(ctx context.Context, roomID, caption string, file Upload) (Message, error) {
	if _, err := validateContent(caption, FileAttachment{}); err != nil {
		return Message{}, err
	}
	stored, err := c.api.UploadAttachment(ctx, roomID, file)
	if err != nil {
		return Message{}, err
	}
	var att Attachment = FileAttachment{URL: stored.URL, Name: stored.Name}
	if file.IsImage() {
		att = ImageAttachment{URL: stored.URL, Name: stored.Name}
	}
	return c.submit(roomID, caption, att)
}

// Retry resubmits a FAILED message as a new PENDING entry.
func (c *Client) Retry(tempID string) (Message, error) {
	var m Message
	var err error
	if derr := c.do(func() { m, err = c.engine.retry(tempID) }); derr != nil {
		return Message{}, derr
	}
	return m, err
}

// Dismiss removes a FAILED message from the stream.
func (c *Client) Dismiss(tempID string) error {
	var err error
	if derr := c.do(func() { err = c.engine.dismiss(tempID) }); derr != nil {
		return derr
	}
	return err
}

// MarkRead clears the unread count of roomID and persists the watermark when
// it advanced.
func (c *Client) MarkRead(roomID string) error {
	return c.do(func() { c.engine.markRead(roomID) })
}

// Receipt is the delivery indicator for an own message in the open room.
func (c *Client) Receipt(messageID string) Receipt {
	var r Receipt
	_ = c.do(func() { r = c.engine.receipt(messageID) })
	return r
}
