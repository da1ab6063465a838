package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const natsSubject = "campus-chat.feed"

// NATS fans envelopes out over a NATS subject.
type NATS struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// DialNATS connects to url, reconnecting forever.
func DialNATS(url string, log zerolog.Logger) (*NATS, error) {
	log = log.With().Str("broker", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("campus-chat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: nc, log: log}, nil
}

func (n *NATS) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.conn.Publish(natsSubject, data)
}

func (n *NATS) Subscribe(ctx context.Context, h Handler) error {
	sub, err := n.conn.Subscribe(natsSubject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			n.log.Warn().Err(err).Msg("dropping malformed envelope")
			return
		}
		h(env)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			n.log.Debug().Err(err).Msg("unsubscribe")
		}
	}()
	return nil
}

func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
