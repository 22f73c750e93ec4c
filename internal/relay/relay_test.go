package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"peercall/native/internal/domain"
	"peercall/native/internal/signal"

	"github.com/rs/zerolog"
)

const directoryYAML = `
rooms:
  - room_id: R
    participants:
      - user_id: "1"
        role: recruiter
      - user_id: "2"
        role: candidate
        token: secret
`

func TestDirectoryAuthorize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	if err := os.WriteFile(path, []byte(directoryYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  *Directory
		req  domain.JoinRequest
		want string
	}{
		{"missing room", NewDirectory(path, false), domain.JoinRequest{UserID: "1"}, domain.DenyMissingRoomID},
		{"missing auth", NewDirectory(path, true), domain.JoinRequest{RoomID: "R", UserID: "1"}, domain.DenyMissingAuth},
		{"non numeric user", NewDirectory(path, false), domain.JoinRequest{RoomID: "R", UserID: "bob"}, domain.DenyInvalidUserID},
		{"zero user", NewDirectory(path, false), domain.JoinRequest{RoomID: "R", UserID: "0"}, domain.DenyInvalidUserID},
		{"unknown room", NewDirectory(path, false), domain.JoinRequest{RoomID: "Q", UserID: "1"}, domain.DenyRoomNotFound},
		{"not a participant", NewDirectory(path, false), domain.JoinRequest{RoomID: "R", UserID: "3"}, domain.DenyUnauthorized},
		{"wrong token", NewDirectory(path, false), domain.JoinRequest{RoomID: "R", UserID: "2", Token: "nope"}, domain.DenyUnauthorized},
		{"participant", NewDirectory(path, false), domain.JoinRequest{RoomID: "R", UserID: "1"}, ""},
		{"participant with token", NewDirectory(path, true), domain.JoinRequest{RoomID: "R", UserID: "2", Token: "secret"}, ""},
		{"open rooms", NewDirectory("", false), domain.JoinRequest{RoomID: "anything", UserID: "9"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.dir.Authorize(tt.req)
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Authorize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirectoryUnreadable(t *testing.T) {
	d := NewDirectory(filepath.Join(t.TempDir(), "missing.yaml"), false)
	reason, err := d.Authorize(domain.JoinRequest{RoomID: "R", UserID: "1"})
	if reason != domain.DenyDBError || err == nil {
		t.Errorf("Authorize() = %q, %v", reason, err)
	}
}

type received struct {
	event string
	msg   any
}

type collector struct {
	events chan received
}

func newCollector() *collector { return &collector{events: make(chan received, 64)} }

func (c *collector) put(event string, msg any) { c.events <- received{event, msg} }

func (c *collector) OnJoinDenied(m domain.JoinDenied) { c.put(domain.EventJoinDenied, m) }
func (c *collector) OnExistingParticipants(m domain.ExistingParticipants) {
	c.put(domain.EventExistingParticipants, m)
}
func (c *collector) OnUserJoined(m domain.ParticipantEvent)          { c.put(domain.EventUserJoined, m) }
func (c *collector) OnUserLeft(m domain.ParticipantEvent)            { c.put(domain.EventUserLeft, m) }
func (c *collector) OnOffer(m domain.DescriptionMessage)             { c.put(domain.EventOffer, m) }
func (c *collector) OnAnswer(m domain.DescriptionMessage)            { c.put(domain.EventAnswer, m) }
func (c *collector) OnICECandidate(m domain.CandidateMessage)        { c.put(domain.EventICECandidate, m) }
func (c *collector) OnProctorEvent(ev domain.ProctorEvent)           { c.put(domain.EventProctor, ev) }
func (c *collector) OnWhiteboard(event string, data json.RawMessage) { c.put(event, data) }
func (c *collector) OnRoomInfo(info domain.RoomInfo)                 { c.put(domain.EventRoomInfo, info) }
func (c *collector) OnDisconnect(error)                              {}

func (c *collector) expect(t *testing.T, event string) any {
	t.Helper()
	select {
	case got := <-c.events:
		if got.event != event {
			t.Fatalf("event = %s (%+v), want %s", got.event, got.msg, event)
		}
		return got.msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", event)
	}
	return nil
}

func (c *collector) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-c.events:
		t.Fatalf("unexpected %s: %+v", got.event, got.msg)
	case <-time.After(100 * time.Millisecond):
	}
}

type testRelay struct {
	srv *httptest.Server
}

func startRelay(t *testing.T, dir *Directory) *testRelay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(dir, zerolog.Nop())
	go hub.Run(ctx)
	srv := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testRelay{srv: srv}
}

func (r *testRelay) dial(t *testing.T, codec signal.Codec) (*signal.Client, *collector) {
	t.Helper()
	col := newCollector()
	c := signal.NewClient("ws"+strings.TrimPrefix(r.srv.URL, "http")+"/ws", codec, col, zerolog.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, col
}

func join(t *testing.T, c *signal.Client, userID string) {
	t.Helper()
	if err := c.Emit(domain.EventJoinRoom, domain.JoinRequest{RoomID: "R", UserID: userID, UserRole: domain.UserRoleCandidate}); err != nil {
		t.Fatal(err)
	}
}

func TestRelayJoinAndForward(t *testing.T) {
	relay := startRelay(t, NewDirectory("", false))
	a, aEvents := relay.dial(t, signal.JSON)
	b, bEvents := relay.dial(t, signal.Msgpack)

	join(t, a, "1")
	if got := aEvents.expect(t, domain.EventExistingParticipants).(domain.ExistingParticipants); len(got.Participants) != 0 {
		t.Fatalf("existing = %v, want empty", got.Participants)
	}
	join(t, b, "2")
	existing := bEvents.expect(t, domain.EventExistingParticipants).(domain.ExistingParticipants)
	if len(existing.Participants) != 1 {
		t.Fatalf("existing = %v", existing.Participants)
	}
	aSID := existing.Participants[0]
	bSID := aEvents.expect(t, domain.EventUserJoined).(domain.ParticipantEvent).SID
	if bSID == "" || bSID == aSID {
		t.Fatalf("sids a=%s b=%s", aSID, bSID)
	}

	offer := domain.DescriptionMessage{SDP: domain.SDPPayload{Type: "offer", SDP: "v=0"}, TargetSID: bSID, RoomID: "R"}
	if err := a.Emit(domain.EventOffer, offer); err != nil {
		t.Fatal(err)
	}
	got := bEvents.expect(t, domain.EventOffer).(domain.DescriptionMessage)
	if got.SenderSID != aSID || got.TargetSID != "" || got.SDP != offer.SDP {
		t.Errorf("offer = %+v", got)
	}

	cand := domain.CandidateMessage{
		Candidate: domain.ICECandidatePayload{Candidate: "candidate:1", SDPMid: "0", SDPMLineIndex: 1},
		TargetSID: aSID,
		RoomID:    "R",
	}
	if err := b.Emit(domain.EventICECandidate, cand); err != nil {
		t.Fatal(err)
	}
	gotCand := aEvents.expect(t, domain.EventICECandidate).(domain.CandidateMessage)
	if gotCand.SenderSID != bSID || gotCand.Candidate != cand.Candidate {
		t.Errorf("candidate = %+v", gotCand)
	}

	_ = a.Emit(domain.EventAnswer, domain.DescriptionMessage{SDP: domain.SDPPayload{Type: "answer"}, TargetSID: "nobody", RoomID: "R"})
	bEvents.expectNone(t)
}

func TestRelayBroadcasts(t *testing.T) {
	relay := startRelay(t, NewDirectory("", false))
	a, aEvents := relay.dial(t, signal.JSON)
	b, bEvents := relay.dial(t, signal.JSON)
	join(t, a, "1")
	aEvents.expect(t, domain.EventExistingParticipants)
	join(t, b, "2")
	bEvents.expect(t, domain.EventExistingParticipants)
	aEvents.expect(t, domain.EventUserJoined)

	if err := a.Emit(domain.EventProctor, domain.ProctorEvent{Type: "tab_switch", RoomID: "R"}); err != nil {
		t.Fatal(err)
	}
	for _, events := range []*collector{aEvents, bEvents} {
		ev := events.expect(t, domain.EventProctor).(domain.ProctorEvent)
		if ev.Type != "tab_switch" || ev.SenderSID == "" {
			t.Errorf("proctor event = %+v", ev)
		}
	}

	if err := b.Emit(domain.EventWhiteboardDraw, map[string]any{"room_id": "R", "x": 3}); err != nil {
		t.Fatal(err)
	}
	raw := aEvents.expect(t, domain.EventWhiteboardDraw).(json.RawMessage)
	var stroke map[string]any
	if err := json.Unmarshal(raw, &stroke); err != nil || stroke["x"] != float64(3) {
		t.Errorf("stroke = %s", raw)
	}
	bEvents.expectNone(t)
}

func TestRelayJoinDenied(t *testing.T) {
	relay := startRelay(t, NewDirectory("", true))
	c, events := relay.dial(t, signal.JSON)
	join(t, c, "1")
	if got := events.expect(t, domain.EventJoinDenied).(domain.JoinDenied); got.Reason != domain.DenyMissingAuth {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestRelayLeaveAndRoomInfo(t *testing.T) {
	relay := startRelay(t, NewDirectory("", false))
	a, aEvents := relay.dial(t, signal.JSON)
	b, bEvents := relay.dial(t, signal.Msgpack)
	join(t, a, "1")
	aEvents.expect(t, domain.EventExistingParticipants)
	join(t, b, "2")
	bEvents.expect(t, domain.EventExistingParticipants)
	bSID := aEvents.expect(t, domain.EventUserJoined).(domain.ParticipantEvent).SID

	if err := b.Emit(domain.EventGetRoomInfo, domain.RoomInfoRequest{RoomID: "R"}); err != nil {
		t.Fatal(err)
	}
	info := bEvents.expect(t, domain.EventRoomInfo).(domain.RoomInfo)
	if !info.Exists || info.Count != 2 {
		t.Errorf("room info = %+v", info)
	}

	join(t, b, "2")
	if got := bEvents.expect(t, domain.EventExistingParticipants).(domain.ExistingParticipants); len(got.Participants) != 1 {
		t.Errorf("re-join participants = %v", got.Participants)
	}
	aEvents.expectNone(t)

	_ = b.Close()
	if got := aEvents.expect(t, domain.EventUserLeft).(domain.ParticipantEvent); got.SID != bSID {
		t.Errorf("user_left = %s, want %s", got.SID, bSID)
	}
	_ = a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(relay.srv.URL + "/rooms/R")
		if err != nil {
			t.Fatal(err)
		}
		var info domain.RoomInfo
		err = json.NewDecoder(resp.Body).Decode(&info)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !info.Exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room still exists: %+v", info)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRelayHealth(t *testing.T) {
	relay := startRelay(t, NewDirectory("", false))
	resp, err := http.Get(relay.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRoomInfoAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(NewDirectory("", false), zerolog.Nop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped
	if _, err := hub.RoomInfo(context.Background(), "R"); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("RoomInfo() error = %v", err)
	}
}

func TestPayloadKeepsIntegers(t *testing.T) {
	f, err := signal.NewFrame(signal.JSON, domain.EventICECandidate, domain.CandidateMessage{
		Candidate: domain.ICECandidatePayload{SDPMLineIndex: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := payload(f)
	if err != nil {
		t.Fatal(err)
	}
	cand := m["candidate"].(map[string]any)
	if v, ok := cand["sdpMLineIndex"].(int64); !ok || v != 2 {
		t.Errorf("sdpMLineIndex = %#v", cand["sdpMLineIndex"])
	}
}
