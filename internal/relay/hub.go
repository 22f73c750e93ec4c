// Package relay is the signaling relay: it authorizes room joins, tracks
// room membership and forwards negotiation messages between participants.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"peercall/native/internal/domain"
	"peercall/native/internal/logging"
	"peercall/native/internal/signal"

	"github.com/rs/zerolog"
)

type inbound struct {
	client *Client
	frame  signal.Frame
}

type roomQuery struct {
	roomID string
	reply  chan domain.RoomInfo
}

type room struct {
	id      string
	members []*Client
}

func (r *room) sids(except *Client) []domain.ParticipantRef {
	out := make([]domain.ParticipantRef, 0, len(r.members))
	for _, m := range r.members {
		if m != except {
			out = append(out, m.sid)
		}
	}
	return out
}

func (r *room) find(sid domain.ParticipantRef) *Client {
	for _, m := range r.members {
		if m.sid == sid {
			return m
		}
	}
	return nil
}

// Hub owns every room and client. All state is confined to the Run
// goroutine; pumps and HTTP handlers talk to it over channels.
type Hub struct {
	dir *Directory
	log zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan roomQuery
	done       chan struct{}

	clients map[*Client]bool
	rooms   map[string]*room
}

func NewHub(dir *Directory, logger zerolog.Logger) *Hub {
	return &Hub{
		dir:        dir,
		log:        logging.Component(logger, "hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		queries:    make(chan roomQuery),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]*room),
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug().Str("sid", string(c.sid)).Str("remote", c.conn.RemoteAddr().String()).Msg("client registered")

		case c := <-h.unregister:
			h.log.Debug().Str("sid", string(c.sid)).Msg("client unregistered")
			h.drop(c)

		case in := <-h.inbound:
			if !h.clients[in.client] {
				continue
			}
			in.client.codec = in.frame.Codec()
			if err := h.handle(in.client, in.frame); err != nil {
				h.log.Warn().Err(err).Str("sid", string(in.client.sid)).Str("event", in.frame.Event).Msg("dropping message")
			}

		case q := <-h.queries:
			q.reply <- h.roomInfo(q.roomID)
		}
	}
}

// RoomInfo returns the membership of a room.
func (h *Hub) RoomInfo(ctx context.Context, roomID string) (domain.RoomInfo, error) {
	q := roomQuery{roomID: roomID, reply: make(chan domain.RoomInfo, 1)}
	select {
	case h.queries <- q:
	case <-h.done:
		return domain.RoomInfo{}, domain.ErrClosed
	case <-ctx.Done():
		return domain.RoomInfo{}, ctx.Err()
	}
	select {
	case info := <-q.reply:
		return info, nil
	case <-ctx.Done():
		return domain.RoomInfo{}, ctx.Err()
	}
}

func (h *Hub) handle(c *Client, f signal.Frame) error {
	switch f.Event {
	case domain.EventJoinRoom:
		var req domain.JoinRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		h.join(c, req)

	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate:
		return h.forward(c, f)

	case domain.EventProctor:
		r := h.rooms[c.roomID]
		if r == nil {
			return fmt.Errorf("%s outside a room", f.Event)
		}
		m, err := payload(f)
		if err != nil {
			return err
		}
		m["sender_sid"] = string(c.sid)
		for _, member := range r.members {
			h.send(member, f.Event, m)
		}

	case domain.EventWhiteboardDraw, domain.EventWhiteboardClear:
		r := h.rooms[c.roomID]
		if r == nil {
			return fmt.Errorf("%s outside a room", f.Event)
		}
		m, err := payload(f)
		if err != nil {
			return err
		}
		for _, member := range r.members {
			if member != c {
				h.send(member, f.Event, m)
			}
		}

	case domain.EventPing:
		var ping domain.Ping
		if err := f.Decode(&ping); err != nil {
			return err
		}
		h.send(c, domain.EventPong, domain.Pong(ping))

	case domain.EventGetRoomInfo:
		var req domain.RoomInfoRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		if req.RoomID == "" {
			req.RoomID = c.roomID
		}
		h.send(c, domain.EventRoomInfo, h.roomInfo(req.RoomID))

	default:
		h.log.Debug().Str("event", f.Event).Msg("unknown event")
	}
	return nil
}

func (h *Hub) join(c *Client, req domain.JoinRequest) {
	log := h.log.With().Str("sid", string(c.sid)).Str("room", req.RoomID).Str("user", req.UserID).Logger()

	reason, err := h.dir.Authorize(req)
	if err != nil {
		log.Error().Err(err).Msg("room directory unavailable")
	}
	if reason != "" {
		log.Info().Str("reason", reason).Msg("join denied")
		h.send(c, domain.EventJoinDenied, domain.JoinDenied{Reason: reason})
		return
	}

	if c.roomID == req.RoomID {
		if r := h.rooms[req.RoomID]; r != nil {
			h.send(c, domain.EventExistingParticipants, domain.ExistingParticipants{Participants: r.sids(c)})
			return
		}
	}
	if c.roomID != "" {
		h.leave(c)
	}

	r := h.rooms[req.RoomID]
	if r == nil {
		r = &room{id: req.RoomID}
		h.rooms[req.RoomID] = r
		log.Info().Msg("room created")
	}
	existing := r.sids(nil)
	for _, member := range r.members {
		h.send(member, domain.EventUserJoined, domain.ParticipantEvent{SID: c.sid})
	}
	r.members = append(r.members, c)
	c.roomID = r.id
	h.send(c, domain.EventExistingParticipants, domain.ExistingParticipants{Participants: existing})
	log.Info().Str("role", string(req.UserRole)).Int("members", len(r.members)).Msg("joined room")
}

// forward delivers an offer, answer or candidate to its target, replacing
// target_sid with the sender's sid.
func (h *Hub) forward(c *Client, f signal.Frame) error {
	r := h.rooms[c.roomID]
	if r == nil {
		return fmt.Errorf("%s outside a room", f.Event)
	}
	m, err := payload(f)
	if err != nil {
		return err
	}
	target, _ := m["target_sid"].(string)
	to := r.find(domain.ParticipantRef(target))
	if to == nil || to == c {
		h.log.Debug().Str("event", f.Event).Str("target", target).Msg("no such target in room")
		return nil
	}
	delete(m, "target_sid")
	m["sender_sid"] = string(c.sid)
	h.send(to, f.Event, m)
	return nil
}

func (h *Hub) leave(c *Client) {
	r := h.rooms[c.roomID]
	c.roomID = ""
	if r == nil {
		return
	}
	r.members = slices.DeleteFunc(r.members, func(m *Client) bool { return m == c })
	if len(r.members) == 0 {
		delete(h.rooms, r.id)
		h.log.Info().Str("room", r.id).Msg("room deleted")
		return
	}
	for _, member := range r.members {
		h.send(member, domain.EventUserLeft, domain.ParticipantEvent{SID: c.sid})
	}
}

// drop removes c from its room and stops its write pump.
func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}
	h.leave(c)
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) roomInfo(roomID string) domain.RoomInfo {
	info := domain.RoomInfo{RoomID: roomID, Participants: []domain.ParticipantRef{}}
	if r := h.rooms[roomID]; r != nil {
		info.Participants = r.sids(nil)
		info.Count = len(r.members)
		info.Exists = true
	}
	return info
}

// send encodes in the codec the client last used. A client whose buffer is
// full is dropped.
func (h *Hub) send(c *Client, event string, data any) {
	if !h.clients[c] {
		return
	}
	frame, err := c.codec.Encode(event, data)
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("encode")
		return
	}
	select {
	case c.send <- outFrame{messageType: c.codec.MessageType(), data: frame}:
	default:
		h.log.Warn().Str("sid", string(c.sid)).Msg("send buffer full, dropping client")
		h.drop(c)
	}
}

// payload decodes the frame data into a generic map. Numbers become int64
// when integral so they survive a change of codec.
func payload(f signal.Frame) (map[string]any, error) {
	raw, err := f.JSON()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Event, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return normalize(m).(map[string]any), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	}
	return v
}
