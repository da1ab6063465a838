package dto

import "encoding/json"

const (
	EventInserted = "INSERTED"
	EventUpdated  = "UPDATED"

	TableMessages    = "messages"
	TableMemberships = "memberships"
)

// FeedFrame is one change feed notification: a row of a table was inserted
// or updated.
type FeedFrame struct {
	Event string          `json:"event"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// NewFeedFrame encodes row into a frame ready to write to a socket.
func NewFeedFrame(event, table string, row any) ([]byte, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	return json.Marshal(FeedFrame{Event: event, Table: table, Row: raw})
}
