package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"peercall/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type recordingHandler struct {
	events chan string
	offers chan domain.DescriptionMessage
	boards chan json.RawMessage
	drops  chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events: make(chan string, 32),
		offers: make(chan domain.DescriptionMessage, 4),
		boards: make(chan json.RawMessage, 4),
		drops:  make(chan error, 1),
	}
}

func (h *recordingHandler) OnJoinDenied(domain.JoinDenied) { h.events <- "join_denied" }
func (h *recordingHandler) OnExistingParticipants(domain.ExistingParticipants) {
	h.events <- "existing_participants"
}
func (h *recordingHandler) OnUserJoined(domain.ParticipantEvent) { h.events <- "user_joined" }
func (h *recordingHandler) OnUserLeft(domain.ParticipantEvent)   { h.events <- "user_left" }
func (h *recordingHandler) OnOffer(m domain.DescriptionMessage) {
	h.events <- "offer"
	h.offers <- m
}
func (h *recordingHandler) OnAnswer(domain.DescriptionMessage)     { h.events <- "answer" }
func (h *recordingHandler) OnICECandidate(domain.CandidateMessage) { h.events <- "ice_candidate" }
func (h *recordingHandler) OnProctorEvent(domain.ProctorEvent)     { h.events <- "proctor_event" }
func (h *recordingHandler) OnWhiteboard(event string, data json.RawMessage) {
	h.events <- event
	h.boards <- data
}
func (h *recordingHandler) OnRoomInfo(domain.RoomInfo) { h.events <- "room_info" }
func (h *recordingHandler) OnDisconnect(err error)     { h.drops <- err }

// echoServer reflects every frame back, rewriting target_sid to sender_sid.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func expectEvent(t *testing.T, h *recordingHandler, want string) {
	t.Helper()
	select {
	case got := <-h.events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestClientDispatch(t *testing.T) {
	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			srv := echoServer(t)
			defer srv.Close()

			h := newRecordingHandler()
			c := NewClient(wsURL(srv), codec, h, zerolog.Nop())
			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer c.Close()

			offer := domain.DescriptionMessage{SDP: domain.SDPPayload{Type: "offer", SDP: "v=0"}, SenderSID: "X", RoomID: "R"}
			if err := c.Emit(domain.EventOffer, offer); err != nil {
				t.Fatalf("Emit() error = %v", err)
			}
			expectEvent(t, h, "offer")
			if got := <-h.offers; got != offer {
				t.Errorf("offer = %+v, want %+v", got, offer)
			}

			if err := c.Emit(domain.EventWhiteboardDraw, map[string]any{"stroke": "a"}); err != nil {
				t.Fatal(err)
			}
			expectEvent(t, h, "wb_draw")
			var board map[string]string
			if err := json.Unmarshal(<-h.boards, &board); err != nil || board["stroke"] != "a" {
				t.Errorf("board = %v, %v", board, err)
			}

			_ = c.Emit(domain.EventUserLeft, domain.ParticipantEvent{SID: "X"})
			expectEvent(t, h, "user_left")
		})
	}
}

func TestClientEmitBeforeConnect(t *testing.T) {
	c := NewClient("ws://unused", JSON, newRecordingHandler(), zerolog.Nop())
	if err := c.Emit(domain.EventPing, nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Emit() error = %v, want ErrNotConnected", err)
	}
	_ = c.Close()
	if err := c.Emit(domain.EventPing, nil); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Emit() after Close error = %v, want ErrClosed", err)
	}
}

func TestClientReportsRemoteDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	h := newRecordingHandler()
	c := NewClient(wsURL(srv), JSON, h, zerolog.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-h.drops:
		if !errors.Is(err, domain.ErrTransport) {
			t.Errorf("OnDisconnect(%v), want ErrTransport", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
}

func TestClientLocalCloseIsClean(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	h := newRecordingHandler()
	c := NewClient(wsURL(srv), JSON, h, zerolog.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
	select {
	case err := <-h.drops:
		if err != nil {
			t.Errorf("OnDisconnect(%v), want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
}
