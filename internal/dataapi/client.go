// Package dataapi implements the messaging core's DataAPI over the chat
// server's HTTP API.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/messaging"
)

const defaultTimeout = 15 * time.Second

// Client talks to one chat server as one user.
type Client struct {
	base  string
	http  *http.Client
	token string
	log   zerolog.Logger
}

var _ messaging.DataAPI = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithToken(token string) Option         { return func(c *Client) { c.token = token } }
func WithLogger(log zerolog.Logger) Option  { return func(c *Client) { c.log = log } }

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token is the bearer token in use.
func (c *Client) Token() string { return c.token }

// Login exchanges credentials for a token and keeps it for later requests.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]messaging.Room, error) {
	var resp struct {
		Rooms []dto.RoomResponse `json:"rooms"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/rooms", nil, &resp); err != nil {
		return nil, err
	}
	rooms := make([]messaging.Room, 0, len(resp.Rooms))
	for _, r := range resp.Rooms {
		room, err := r.ToMessaging()
		if err != nil {
			c.log.Warn().Err(err).Str("room", r.ID.String()).Msg("skipping room")
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (c *Client) CreateOrFetchRoom(ctx context.Context, targetUserID string) (*messaging.Room, error) {
	target, err := uuid.Parse(targetUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad user id %q", messaging.ErrValidation, targetUserID)
	}
	var resp dto.RoomResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/rooms/private", dto.PrivateRoomRequest{UserID: target}, &resp); err != nil {
		return nil, err
	}
	room, err := resp.ToMessaging()
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) ListMessages(ctx context.Context, roomID, before string, limit int) ([]messaging.Message, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Messages []dto.MessageResponse `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	msgs := make([]messaging.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg, err := m.ToMessaging()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, req messaging.SendRequest) (*messaging.Message, error) {
	body := dto.SendMessageRequest{
		ClientID:   req.ClientID,
		Content:    req.Content,
		Attachment: dto.AttachmentFromMessaging(req.Attachment),
	}
	var resp dto.MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/rooms/"+url.PathEscape(req.RoomID)+"/messages", body, &resp); err != nil {
		return nil, err
	}
	msg, err := resp.ToMessaging()
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) MarkRead(ctx context.Context, roomID string, at time.Time) error {
	at = at.UTC()
	return c.doJSON(ctx, http.MethodPost, "/api/v1/rooms/"+url.PathEscape(roomID)+"/read", dto.MarkReadRequest{LastReadAt: &at}, nil)
}

func (c *Client) Moderate(ctx context.Context, messageID string, patch messaging.ModerationPatch) error {
	body := dto.ModerateRequest{IsPinned: patch.Pinned, IsDeleted: patch.Deleted}
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/messages/"+url.PathEscape(messageID), body, nil)
}

func (c *Client) UploadAttachment(ctx context.Context, roomID string, file messaging.Upload) (*messaging.StoredFile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/rooms/"+url.PathEscape(roomID)+"/attachments", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp dto.Attachment
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &messaging.StoredFile{URL: resp.URL, Name: resp.Name}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", messaging.ErrValidation, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", messaging.ErrTransient, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", messaging.ErrTransient, req.URL.Path, err)
	}
	return nil
}
