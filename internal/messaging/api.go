package messaging

import (
	"context"
	"time"
)

// DataAPI is the request/response server of record.
type DataAPI interface {
	ListRooms(ctx context.Context) ([]Room, error)
	CreateOrFetchRoom(ctx context.Context, targetUserID string) (*Room, error)
	// ListMessages returns up to limit messages older than before (all
	// recent ones when before is empty), in chronological order.
	ListMessages(ctx context.Context, roomID, before string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, req SendRequest) (*Message, error)
	// MarkRead persists the watermark. The server keeps the maximum it has seen.
	MarkRead(ctx context.Context, roomID string, at time.Time) error
	Moderate(ctx context.Context, messageID string, patch ModerationPatch) error
	UploadAttachment(ctx context.Context, roomID string, file Upload) (*StoredFile, error)
}

// Feed is the push channel of change events. The channel closes when the
// feed shuts down for good.
type Feed interface {
	Events() <-chan ChangeEvent
}
