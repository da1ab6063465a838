package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/broker"
	"github.com/thereayou/campus-chat/internal/database"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/middleware"
	"github.com/thereayou/campus-chat/internal/services"
	"github.com/thereayou/campus-chat/internal/storage"
	"github.com/thereayou/campus-chat/pkg/auth"
	"gorm.io/driver/sqlite"
)

type noBlacklist struct{}

func (noBlacklist) Revoke(context.Context, string, time.Duration) error { return nil }
func (noBlacklist) IsRevoked(context.Context, string) (bool, error)     { return false, nil }

type api struct {
	t      *testing.T
	router *gin.Engine
	db     *database.Database
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())))
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewLocal(t.TempDir(), "http://files.test", 1024)
	if err != nil {
		t.Fatal(err)
	}
	jwt := auth.NewJWTManager("test", time.Hour)
	chat := services.NewChatService(db, broker.NewLocal(), zerolog.Nop())

	authH := NewAuthHandler(services.NewAuthService(db, jwt, noBlacklist{}))
	roomH := NewRoomHandler(chat)
	msgH := NewMessageHandler(chat)
	uploadH := NewUploadHandler(chat, store)
	userH := NewUserHandler(db)

	r := gin.New()
	r.POST("/auth/register", authH.Register)
	r.POST("/auth/login", authH.Login)
	v1 := r.Group("/api/v1", middleware.AuthMiddleware(jwt, noBlacklist{}))
	v1.GET("/users/me", userH.GetMe)
	v1.PATCH("/users/me", userH.UpdateMe)
	v1.GET("/users/search", userH.SearchUsers)
	v1.GET("/rooms", roomH.GetMyRooms)
	v1.POST("/rooms", roomH.CreateRoom)
	v1.POST("/rooms/private", roomH.OpenPrivateRoom)
	v1.PUT("/rooms/:id/members", roomH.SetMember)
	v1.GET("/rooms/:id/messages", msgH.GetRoomMessages)
	v1.POST("/rooms/:id/messages", msgH.SendMessage)
	v1.POST("/rooms/:id/read", msgH.MarkRead)
	v1.POST("/rooms/:id/attachments", uploadH.Upload)
	v1.PATCH("/messages/:id", msgH.Moderate)
	return &api{t: t, router: r, db: db}
}

func (a *api) do(method, path, token string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func (a *api) register(name string) dto.AuthResponse {
	a.t.Helper()
	var resp dto.AuthResponse
	code := a.do(http.MethodPost, "/auth/register", "", dto.RegisterRequest{
		Username: name, Email: name + "@campus.test", Password: "password-" + name,
	}, &resp)
	if code != http.StatusCreated {
		a.t.Fatalf("register %s: %d", name, code)
	}
	return resp
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t)
	alice := a.register("alice")

	if code := a.do(http.MethodPost, "/auth/register", "", dto.RegisterRequest{
		Username: "alice", Email: "alice@campus.test", Password: "password-alice",
	}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", code)
	}
	if code := a.do(http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: "alice@campus.test", Password: "nope"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", code)
	}

	var me map[string]any
	if code := a.do(http.MethodGet, "/api/v1/users/me", alice.Token, nil, &me); code != http.StatusOK || me["username"] != "alice" {
		t.Fatalf("me: %d %v", code, me)
	}
	if code := a.do(http.MethodGet, "/api/v1/users/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous me: %d", code)
	}

	var found struct{ Users []dto.UserInfo }
	a.do(http.MethodGet, "/api/v1/users/search?q=AL", alice.Token, nil, &found)
	if len(found.Users) != 1 || found.Users[0].Username != "alice" {
		t.Fatalf("search: %+v", found)
	}
}

func TestPrivateRoomMessaging(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.register("alice"), a.register("bob")
	bobID := uuid.MustParse(bob.Uid)

	var room dto.RoomResponse
	if code := a.do(http.MethodPost, "/api/v1/rooms/private", alice.Token, dto.PrivateRoomRequest{UserID: bobID}, &room); code != http.StatusOK {
		t.Fatalf("open private: %d", code)
	}
	var again dto.RoomResponse
	a.do(http.MethodPost, "/api/v1/rooms/private", bob.Token, dto.PrivateRoomRequest{UserID: uuid.MustParse(alice.Uid)}, &again)
	if again.ID != room.ID {
		t.Fatalf("second open returned %s, want %s", again.ID, room.ID)
	}
	if code := a.do(http.MethodPost, "/api/v1/rooms/private", alice.Token, dto.PrivateRoomRequest{UserID: uuid.MustParse(alice.Uid)}, nil); code != http.StatusBadRequest {
		t.Fatalf("self room: %d", code)
	}
	if code := a.do(http.MethodPost, "/api/v1/rooms/private", alice.Token, dto.PrivateRoomRequest{UserID: uuid.New()}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown user: %d", code)
	}

	path := "/api/v1/rooms/" + room.ID.String() + "/messages"
	send := dto.SendMessageRequest{ClientID: "01HX-temp", Content: "  see you at the library  "}
	var first, second dto.MessageResponse
	a.do(http.MethodPost, path, alice.Token, send, &first)
	a.do(http.MethodPost, path, alice.Token, send, &second)
	if first.ID != second.ID || first.ClientID != "01HX-temp" || first.Content != "see you at the library" {
		t.Fatalf("idempotent send: %+v %+v", first, second)
	}
	if code := a.do(http.MethodPost, path, alice.Token, dto.SendMessageRequest{Content: "   "}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty send: %d", code)
	}

	var rooms struct{ Rooms []dto.RoomResponse }
	a.do(http.MethodGet, "/api/v1/rooms", bob.Token, nil, &rooms)
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].UnreadCount != 1 || rooms.Rooms[0].LastMessage.ID != first.ID {
		t.Fatalf("bob's rooms: %+v", rooms)
	}

	var ms dto.MembershipResponse
	if code := a.do(http.MethodPost, "/api/v1/rooms/"+room.ID.String()+"/read", bob.Token, nil, &ms); code != http.StatusOK {
		t.Fatalf("mark read: %d", code)
	}
	a.do(http.MethodGet, "/api/v1/rooms", bob.Token, nil, &rooms)
	if rooms.Rooms[0].UnreadCount != 0 {
		t.Fatalf("unread after read: %d", rooms.Rooms[0].UnreadCount)
	}

	var page struct{ Messages []dto.MessageResponse }
	a.do(http.MethodGet, path+"?limit=10", bob.Token, nil, &page)
	if len(page.Messages) != 1 {
		t.Fatalf("history: %+v", page)
	}
	carol := a.register("carol")
	if code := a.do(http.MethodGet, path, carol.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("outsider history: %d", code)
	}
	if code := a.do(http.MethodGet, path+"?before=nope", bob.Token, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d", code)
	}

	blocked := true
	a.do(http.MethodPatch, "/api/v1/users/me", carol.Token, map[string]*bool{"dm_blocked": &blocked}, nil)
	if code := a.do(http.MethodPost, "/api/v1/rooms/private", alice.Token, dto.PrivateRoomRequest{UserID: uuid.MustParse(carol.Uid)}, nil); code != http.StatusForbidden {
		t.Fatalf("dm blocked: %d", code)
	}
}

func TestGroupModeration(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.register("alice"), a.register("bob")

	var room dto.RoomResponse
	if code := a.do(http.MethodPost, "/api/v1/rooms", alice.Token, dto.CreateGroupRequest{
		Name: "CS 240", MemberIDs: []uuid.UUID{uuid.MustParse(bob.Uid)},
	}, &room); code != http.StatusCreated {
		t.Fatalf("create group: %d", code)
	}

	var msg dto.MessageResponse
	a.do(http.MethodPost, "/api/v1/rooms/"+room.ID.String()+"/messages", bob.Token, dto.SendMessageRequest{Content: "slides are up"}, &msg)

	pin := true
	path := "/api/v1/messages/" + msg.ID.String()
	if code := a.do(http.MethodPatch, path, bob.Token, dto.ModerateRequest{IsPinned: &pin}, nil); code != http.StatusForbidden {
		t.Fatalf("member pin: %d", code)
	}
	if code := a.do(http.MethodPut, "/api/v1/rooms/"+room.ID.String()+"/members", alice.Token, dto.SetMemberRequest{
		UserID: uuid.MustParse(bob.Uid), Role: "moderator",
	}, nil); code != http.StatusOK {
		t.Fatalf("promote: %d", code)
	}
	var pinned dto.MessageResponse
	if code := a.do(http.MethodPatch, path, bob.Token, dto.ModerateRequest{IsPinned: &pin}, &pinned); code != http.StatusOK || !pinned.IsPinned {
		t.Fatalf("moderator pin: %d %+v", code, pinned)
	}
	if code := a.do(http.MethodPatch, "/api/v1/messages/"+uuid.NewString(), bob.Token, dto.ModerateRequest{IsPinned: &pin}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown message: %d", code)
	}
}

func multipartBody(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.register("alice"), a.register("bob")
	var room dto.RoomResponse
	a.do(http.MethodPost, "/api/v1/rooms/private", alice.Token, dto.PrivateRoomRequest{UserID: uuid.MustParse(bob.Uid)}, &room)
	path := "/api/v1/rooms/" + room.ID.String() + "/attachments"

	upload := func(token, name, contentType string, data []byte) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, name, contentType, data)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w
	}

	w := upload(alice.Token, "board.png", "image/png", []byte("\x89PNG"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var att dto.Attachment
	json.Unmarshal(w.Body.Bytes(), &att)
	if att.Kind != "image" || att.Name != "board.png" || att.URL == "" {
		t.Fatalf("attachment: %+v", att)
	}

	if w := upload(alice.Token, "big.pdf", "application/pdf", make([]byte, 2048)); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload: %d", w.Code)
	}
	carol := a.register("carol")
	if w := upload(carol.Token, "x.txt", "text/plain", []byte("x")); w.Code != http.StatusNotFound {
		t.Fatalf("outsider upload: %d", w.Code)
	}
}

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: empty", services.ErrValidation), http.StatusBadRequest},
		{services.ErrInvalidLogin, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("room x: %w", services.ErrNotFound), http.StatusNotFound},
		{services.ErrTaken, http.StatusConflict},
		{storage.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		if w.Code != tc.status {
			t.Errorf("%v: status %d, want %d", tc.err, w.Code, tc.status)
		}
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("disk on fire"))
	if bytes.Contains(w.Body.Bytes(), []byte("disk")) {
		t.Fatal("internal error leaked to the client")
	}
}
