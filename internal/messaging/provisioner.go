package messaging

import (
	"context"
	"errors"
	"fmt"
)

func (e *engine) lookupPrivate(partner string) (Room, bool) {
	r := e.dir.findPrivateWith(partner)
	if r == nil {
		return Room{}, false
	}
	return r.clone(), true
}

func (e *engine) mergeRoom(r Room) Room {
	merged := e.dir.upsert(r).clone()
	e.eff.notify(Update{Kind: RoomsChanged, RoomID: r.ID})
	return merged
}

// OpenPrivateRoom returns the private room shared with targetUserID,
// creating it through the data API when the directory has none. Concurrent
// calls for the same partner share one request; uniqueness across sessions
// is decided by the server.
func (c *Client) OpenPrivateRoom(ctx context.Context, targetUserID string) (Room, error) {
	if targetUserID == "" || targetUserID == c.self {
		return Room{}, fmt.Errorf("%w: cannot open a private room with %q", ErrValidation, targetUserID)
	}

	var cached Room
	var found bool
	if err := c.do(func() { cached, found = c.engine.lookupPrivate(targetUserID) }); err != nil {
		return Room{}, err
	}
	if found {
		return cached, nil
	}

	// The shared call outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.provisioning.DoChan(targetUserID, func() (any, error) {
		room, err := c.createOrFetch(shared, targetUserID)
		if err != nil {
			return nil, err
		}
		var merged Room
		if err := c.do(func() { merged = c.engine.mergeRoom(*room) }); err != nil {
			return nil, err
		}
		return merged, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Room{}, res.Err
		}
		return res.Val.(Room), nil
	case <-ctx.Done():
		return Room{}, ctx.Err()
	}
}

func (c *Client) createOrFetch(ctx context.Context, target string) (*Room, error) {
	room, err := c.api.CreateOrFetchRoom(ctx, target)
	if errors.Is(err, ErrConflict) {
		// The server settled a concurrent create; the second call fetches it.
		c.log.Debug().Str("target", target).Msg("private room conflict, refetching")
		room, err = c.api.CreateOrFetchRoom(ctx, target)
	}
	if err != nil {
		return nil, err
	}
	if room.Kind != RoomPrivate {
		return nil, fmt.Errorf("%w: server returned a %s room", ErrValidation, room.Kind)
	}
	return room, nil
}
