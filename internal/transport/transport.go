// Package transport is the connection actor that owns the reconnecting
// websocket to the host bridge. No other component knows transport
// internals; incoming triggers are handed to a Sink.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/seralys/gacha-overlay/internal/constants"
	"github.com/seralys/gacha-overlay/pkg/types"
)

// Sink is the engine surface the transport dispatches into.
type Sink interface {
	EnqueuePulls(meta types.BatchMeta, pulls []types.PullRecord)
	Clear()
}

type Config struct {
	URL   string
	Token string
	Sink  Sink
	Log   zerolog.Logger
}

type Client struct {
	url   string
	token string
	sink  Sink
	log   zerolog.Logger
}

func New(cfg Config) *Client {
	return &Client{
		url:   cfg.URL,
		token: cfg.Token,
		sink:  cfg.Sink,
		log:   cfg.Log.With().Str("component", "transport").Logger(),
	}
}

// Run dials the bridge and keeps the connection alive until ctx is done.
// Every close or dial failure schedules a reconnect with the current
// back-off delay; a successful open resets the delay to its base.
func (c *Client) Run(ctx context.Context) {
	delay := constants.ReconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		c.log.Debug().Str("url", c.url).Msg("connecting")
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("connect failed")
			sleep(ctx, delay)
			delay = nextDelay(delay)
			continue
		}

		delay = constants.ReconnectBaseDelay
		c.log.Info().Str("url", c.url).Msg("connected")

		if err := c.sendReady(ctx, conn); err != nil {
			c.log.Warn().Err(err).Msg("ready handshake failed")
			_ = conn.Close(websocket.StatusInternalError, "handshake failed")
			sleep(ctx, delay)
			delay = nextDelay(delay)
			continue
		}

		c.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")

		c.log.Info().Dur("retry_in", delay).Msg("connection closed, reconnecting")
		sleep(ctx, delay)
		delay = nextDelay(delay)
	}
}

func (c *Client) sendReady(ctx context.Context, conn *websocket.Conn) error {
	ready := types.ReadyMessage{
		Type:    types.MsgReady,
		Version: 1,
		Token:   c.token,
		Overlay: "gacha",
	}
	payload, err := json.Marshal(ready)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug().Msg("bridge closed connection")
			default:
				if ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("read error")
				}
			}
			return
		}

		if reply, ok := c.handleFrame(data); ok {
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = conn.Write(wctx, websocket.MessageText, reply)
			cancel()
		}
	}
}

// handleFrame dispatches one text frame. Malformed frames are logged and
// dropped; unknown types are silently ignored. The returned reply, when
// ok, is written back to the bridge.
func (c *Client) handleFrame(data []byte) ([]byte, bool) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn().Err(err).Msg("malformed frame dropped")
		return nil, false
	}

	switch env.Type {
	case types.MsgGachaPulls:
		meta, pulls, err := types.ParseGachaPulls(env)
		if err != nil {
			c.log.Warn().Err(err).Msg("unusable gacha_pulls payload dropped")
			return nil, false
		}
		c.sink.EnqueuePulls(meta, pulls)

	case types.MsgClear:
		c.sink.Clear()

	case types.MsgPing:
		reply, err := json.Marshal(types.PongMessage{Type: types.MsgPong, TS: env.TS})
		if err != nil {
			return nil, false
		}
		return reply, true

	case types.MsgHello, types.MsgReadyAck:
		c.log.Debug().Str("type", env.Type).Msg("bridge handshake message")

	case types.MsgError:
		c.log.Warn().Str("code", env.Code).Msg("bridge reported an error")
	}
	return nil, false
}

// nextDelay grows the back-off by a fixed factor up to the ceiling.
func nextDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * constants.ReconnectFactor)
	if d > constants.ReconnectMaxDelay {
		d = constants.ReconnectMaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
