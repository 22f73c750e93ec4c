package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"peercall/native/internal/domain"
	"peercall/native/internal/logging"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	url     string
	codec   Codec
	handler domain.Handler
	log     zerolog.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed chan struct{}
	once   sync.Once
}

// NewClient creates a signaling client for the relay at url.
func NewClient(url string, codec Codec, handler domain.Handler, logger zerolog.Logger) *Client {
	if codec == nil {
		codec = JSON
	}
	return &Client{
		url:     url,
		codec:   codec,
		handler: handler,
		log:     logging.Component(logger, "signal"),
		dialer:  websocket.DefaultDialer,
		closed:  make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info().Str("url", c.url).Str("codec", c.codec.Name()).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		conn.Close()
		return domain.ErrClosed
	default:
	}
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// Close shuts down the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn == nil {
			return
		}
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// Emit sends one event to the relay.
func (c *Client) Emit(event string, payload any) error {
	data, err := c.codec.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return domain.ErrClosed
	default:
	}
	if c.conn == nil {
		return domain.ErrNotConnected
	}
	c.log.Debug().Str("event", event).Int("bytes", len(data)).Msg(">>>")
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var readErr error
	defer func() {
		if c.isClosed() {
			readErr = nil
		}
		c.handler.OnDisconnect(readErr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.log.Warn().Err(err).Msg("read error")
				readErr = fmt.Errorf("%w: %v", domain.ErrTransport, err)
			}
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.log.Debug().Str("event", frame.Event).Msg("<<<")

		if err := c.dispatch(frame); err != nil {
			c.log.Warn().Err(err).Str("event", frame.Event).Msg("dropping undecodable event")
		}
	}
}

func (c *Client) dispatch(frame Frame) error {
	switch frame.Event {
	case domain.EventJoinDenied:
		var msg domain.JoinDenied
		if err := frame.Decode(&msg); err != nil {
			return err
		}
		c.handler.OnJoinDenied(msg)

	case domain.EventExistingParticipants:
		var msg domain.ExistingParticipants
		if err := frame.Decode(&msg); err != nil {
			return err
		}
		c.handler.OnExistingParticipants(msg)

	case domain.EventUserJoined, domain.EventUserLeft:
		var msg domain.ParticipantEvent
		if err := frame.Decode(&msg); err != nil {
			return err
		}
		if frame.Event == domain.EventUserJoined {
			c.handler.OnUserJoined(msg)
		} else {
			c.handler.OnUserLeft(msg)
		}

	case domain.EventOffer, domain.EventAnswer:
		var msg domain.DescriptionMessage
		if err := frame.Decode(&msg); err != nil {
			return err
		}
		if frame.Event == domain.EventOffer {
			c.handler.OnOffer(msg)
		} else {
			c.handler.OnAnswer(msg)
		}

	case domain.EventICECandidate:
		var msg domain.CandidateMessage
		if err := frame.Decode(&msg); err != nil {
			return err
		}
		c.handler.OnICECandidate(msg)

	case domain.EventProctor:
		var ev domain.ProctorEvent
		if err := frame.Decode(&ev); err != nil {
			return err
		}
		c.handler.OnProctorEvent(ev)

	case domain.EventWhiteboardDraw, domain.EventWhiteboardClear:
		raw, err := frame.JSON()
		if err != nil {
			return err
		}
		c.handler.OnWhiteboard(frame.Event, raw)

	case domain.EventRoomInfo:
		var info domain.RoomInfo
		if err := frame.Decode(&info); err != nil {
			return err
		}
		c.handler.OnRoomInfo(info)

	case domain.EventPong:
		// keepalive reply

	default:
		c.log.Debug().Str("event", frame.Event).Msg("unhandled event")
	}
	return nil
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				if !c.isClosed() && !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Warn().Err(err).Msg("ping error")
				}
				return
			}
		}
	}
}
